package txn

// ValidationResult is the verdict of the external content validator.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues,omitempty"`
}

// Validator is the external structural/semantic validator collaborator.
// The coordinator trusts pre-validated content and performs no
// business-rule validation itself; when a Validator is injected it is
// consulted once before new content is committed, never on content the
// authority already holds.
type Validator interface {
	Validate(payload map[string]any) ValidationResult
}

// NullValidator accepts everything. It is the default: validation is the
// caller's responsibility.
type NullValidator struct{}

func (NullValidator) Validate(payload map[string]any) ValidationResult {
	return ValidationResult{IsValid: true}
}
