package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// File permission constants.
const (
	dirPermissions  = 0700
	filePermissions = 0600
)

const requestTimeout = 30 * time.Second

// ClientConfig holds the CLI configuration.
type ClientConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TenantID       string `yaml:"tenant_id"`
	OrganizationID string `yaml:"organization_id"`
	DepartmentID   string `yaml:"department_id"`
	UserID         string `yaml:"user_id"`
	Token          string `yaml:"token"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Endpoint: "http://localhost:9400",
	}
}

// configPath returns the path to the config file.
func configPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tenantcore", "config.yaml")
}

// LoadConfig loads the configuration from file or environment.
func LoadConfig() (*ClientConfig, error) {
	cfg := DefaultConfig()

	// Try to load from file
	data, err := os.ReadFile(configPath())
	if err == nil {
		err := yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	// Override with environment variables
	if endpoint := os.Getenv("TENANTCORE_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if tenant := os.Getenv("TENANTCORE_TENANT_ID"); tenant != "" {
		cfg.TenantID = tenant
	}

	if org := os.Getenv("TENANTCORE_ORGANIZATION_ID"); org != "" {
		cfg.OrganizationID = org
	}

	if dept := os.Getenv("TENANTCORE_DEPARTMENT_ID"); dept != "" {
		cfg.DepartmentID = dept
	}

	if user := os.Getenv("TENANTCORE_USER_ID"); user != "" {
		cfg.UserID = user
	}

	if token := os.Getenv("TENANTCORE_TOKEN"); token != "" {
		cfg.Token = token
	}

	return cfg, nil
}

// SaveConfig saves the configuration to file.
func SaveConfig(cfg *ClientConfig) error {
	path := configPath()

	err := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(path, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Client is a thin HTTP client for the tenantcore admin API. Tenant scope
// headers are attached to every request from the CLI configuration.
type Client struct {
	cfg  *ClientConfig
	http *http.Client
}

// NewClient creates an admin API client from the CLI configuration.
func NewClient() (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Do performs an API request and returns the raw response body. Responses
// with a non-2xx status are returned as errors carrying the server message.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return nil, err
	}

	if c.cfg.TenantID != "" {
		req.Header.Set("X-Tenant-ID", c.cfg.TenantID)
	}
	if c.cfg.OrganizationID != "" {
		req.Header.Set("X-Organization-ID", c.cfg.OrganizationID)
	}
	if c.cfg.DepartmentID != "" {
		req.Header.Set("X-Department-ID", c.cfg.DepartmentID)
	}
	if c.cfg.UserID != "" {
		req.Header.Set("X-User-ID", c.cfg.UserID)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return data, fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}

		return data, fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
	}

	return data, nil
}

// PrintJSON re-indents a JSON response for terminal output.
func PrintJSON(data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))

		return nil
	}

	fmt.Println(buf.String())

	return nil
}
