package compat

// TraceStep records the outcome of one rule on the way to a verdict.
type TraceStep struct {
	Stage   string            `json:"stage"`
	Outcome string            `json:"outcome"`
	Details map[string]string `json:"details,omitempty"`
}

// DecisionTrace captures the ordered rule walk of a single decision. It is
// only populated for debug requests; a nil trace is a no-op so the hot path
// can pass nil without guards.
type DecisionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// Add appends a step for the given stage.
func (t *DecisionTrace) Add(stage, outcome string) {
	t.AddWithDetails(stage, outcome, nil)
}

// AddWithDetails appends a step carrying extra key/value context.
func (t *DecisionTrace) AddWithDetails(stage, outcome string, details map[string]string) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, TraceStep{Stage: stage, Outcome: outcome, Details: details})
}
