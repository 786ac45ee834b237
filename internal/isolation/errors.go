package isolation

import "fmt"

// KeyTooLongError is returned when a derived key exceeds the configured
// max_key_length for its level. The resolver never truncates silently.
type KeyTooLongError struct {
	Level  Level
	Length int
	Max    int
}

func (e *KeyTooLongError) Error() string {
	return fmt.Sprintf("isolation: derived key for level %s is %d bytes, exceeding the configured maximum of %d",
		e.Level, e.Length, e.Max)
}

// HierarchyError is returned when an isolation context violates the
// department ⇒ organization ⇒ tenant nesting invariant. It is recoverable:
// reject the single operation, never shared state.
type HierarchyError struct {
	Missing string
	Present string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("isolation: context has %s but no %s", e.Present, e.Missing)
}

// LevelDisabledError is returned when a caller requests isolation at a level
// that has no enabled configuration.
type LevelDisabledError struct {
	Level Level
}

func (e *LevelDisabledError) Error() string {
	return fmt.Sprintf("isolation: level %s has no enabled isolation configuration", e.Level)
}
