package model

// BarStatus is the terminal state of one bar-processing attempt.
type BarStatus string

const (
	BarPending          BarStatus = "pending"
	BarFetched          BarStatus = "fetched"
	BarValidated        BarStatus = "validated"
	BarPersisted        BarStatus = "persisted"
	BarSkippedDuplicate BarStatus = "skipped_duplicate"
	BarSkippedNoData    BarStatus = "skipped_no_data"
	BarFailed           BarStatus = "failed"
)

// ResultStatus discriminates an orchestrator Result.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusSkipped ResultStatus = "skipped"
	StatusFailed  ResultStatus = "failed"
)

// Counts aggregates per-unit outcomes of an orchestrator run.
type Counts struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Signals    int `json:"signals"`
	Duplicates int `json:"duplicates"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Added += o.Added
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Errors += o.Errors
	c.Signals += o.Signals
	c.Duplicates += o.Duplicates
}

// Result is the outcome of one orchestrator operation for one symbol.
// Callers branch on Status; Kind and Message are set when Status is
// StatusFailed or StatusSkipped.
type Result struct {
	Operation           string         `json:"operation"`
	Symbol              string         `json:"symbol"`
	Status              ResultStatus   `json:"status"`
	Kind                ErrorKind      `json:"kind,omitempty"`
	Message             string         `json:"message,omitempty"`
	BarStatus           BarStatus      `json:"bar_status,omitempty"`
	InsufficientHistory bool           `json:"insufficient_history,omitempty"`
	Counts              Counts         `json:"counts"`
	Signals             []*SignalEvent `json:"-"`
}

// OK reports whether the operation completed without failure.
func (r Result) OK() bool { return r.Status != StatusFailed }

// Fail marks r failed with err's kind and message.
func (r *Result) Fail(err error) {
	r.Status = StatusFailed
	r.Kind = KindOf(err)
	if r.Kind == "" {
		r.Kind = PersistenceFailure
	}
	r.Message = err.Error()
}

// Skip marks r skipped for the given reason.
func (r *Result) Skip(kind ErrorKind, msg string) {
	r.Status = StatusSkipped
	r.Kind = kind
	r.Message = msg
}
