package isolation

import (
	"context"

	"github.com/piwi3910/tenantcore/internal/config"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// ValidateHierarchy checks the nesting invariant of an isolation context:
// a department requires an organization, an organization requires a tenant.
// The user identifier has no nesting requirement. The check is pure and
// stateless; a violation is recoverable and must only fail the single
// operation that carried the context.
func ValidateHierarchy(ic tenantctx.IsolationContext) error {
	if ic.OrganizationID != "" && ic.TenantID == "" {
		return &HierarchyError{Present: "organization", Missing: "tenant"}
	}

	if ic.DepartmentID != "" && ic.OrganizationID == "" {
		return &HierarchyError{Present: "department", Missing: "organization"}
	}

	return nil
}

// HierarchyValidator validates contexts against the configured permission
// policy.
type HierarchyValidator struct {
	cfg *config.MultiTenancyConfig
}

// NewHierarchyValidator creates a validator over a validated configuration.
func NewHierarchyValidator(cfg *config.MultiTenancyConfig) *HierarchyValidator {
	return &HierarchyValidator{cfg: cfg}
}

// Validate checks the active context's hierarchy. It returns
// tenantctx.ErrContextMissing when no context is active and a HierarchyError
// on a nesting violation.
func (v *HierarchyValidator) Validate(ctx context.Context) error {
	ic, ok := tenantctx.FromContext(ctx)
	if !ok {
		return tenantctx.ErrContextMissing
	}

	return ValidateHierarchy(ic)
}

// ValidatePermission reports whether the active context carries an
// identifier at the required level with a valid hierarchy beneath it.
//
// When enable_permission_check is false this always returns true. That is a
// deliberate, configuration-visible escape hatch, not a fallback: the config
// validator warns about it at startup.
func (v *HierarchyValidator) ValidatePermission(ctx context.Context, required Level) bool {
	if !v.cfg.MultiLevel.EnablePermissionCheck {
		return true
	}

	ic, ok := tenantctx.FromContext(ctx)
	if !ok {
		return false
	}

	if ValidateHierarchy(ic) != nil {
		return false
	}

	return Identifier(ic, required) != ""
}
