package harness

// QueryTrace records one executed query.
type QueryTrace struct {
	Name  string `json:"name"`
	Query string `json:"query"`
	SQL   string `json:"sql,omitempty"`

	// Rows holds resource names per row and column.
	Rows [][]string `json:"rows,omitempty"`

	// Values holds formatted SELECT values, when the query has a SELECT.
	Values [][]string `json:"values,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Trace contains the executed queries in order.
	Trace []QueryTrace `json:"trace"`

	// Errors contains the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []QueryTrace{},
		Errors: []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed query.
func (r *Result) AddTrace(t QueryTrace) {
	r.Trace = append(r.Trace, t)
}
