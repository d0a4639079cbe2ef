package harness

// Outcome is what one backend resolved for one query.
type Outcome struct {
	Backend string   `json:"backend"`
	IDs     []string `json:"ids"`
	Count   int      `json:"count"`

	// SQL is the synthesized query, on backends that synthesize one.
	SQL string `json:"sql,omitempty"`

	// Err is the resolution error message, if resolution failed.
	Err string `json:"error,omitempty"`
}

// QueryResult collects the outcomes of one query across backends.
type QueryResult struct {
	Name     string    `json:"name"`
	Outcomes []Outcome `json:"outcomes"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass indicates overall test success: every expectation held and the
	// backends agreed.
	Pass bool `json:"pass"`

	Queries []QueryResult `json:"queries"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Queries:  []QueryResult{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
