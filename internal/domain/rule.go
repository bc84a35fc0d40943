package domain

// AlertPolicy defines a post-scoring alert policy.
type AlertPolicy struct {
	ID          string `mapstructure:"id" json:"id"`
	Name        string `mapstructure:"name" json:"name"`
	Description string `mapstructure:"description" json:"description,omitempty"`

	// CEL expression evaluated against a single scored row; must return bool
	Expression string `mapstructure:"expression" json:"expression"`

	// Reason reported when the policy matches
	Reason string `mapstructure:"reason" json:"reason"`

	// Whether policy is active
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// AlertMatch is one policy match (or evaluation failure) on one row.
type AlertMatch struct {
	PolicyID string `json:"policyId"`
	RowIndex int    `json:"rowIndex"`
	Outcome  string `json:"outcome"` // ".fail" on match, ".err" on evaluation error
	Reason   string `json:"reason"`
}

// Predefined alert outcomes
const (
	AlertOutcomeMatch = ".fail"
	AlertOutcomeError = ".err"
)

// AlertEvent is the payload published on TopicRunAlert.
type AlertEvent struct {
	RunID   string       `json:"runId"`
	Matches []AlertMatch `json:"matches"`
}
