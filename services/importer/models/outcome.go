package models

// WriteOutcome is the per-record result of a write attempt.
type WriteOutcome struct {
	Index int
	SKU   string
	Err   error
}

// Applied reports whether the write succeeded.
func (o WriteOutcome) Applied() bool { return o.Err == nil }

// UpsertResult aggregates the outcomes of one Upsert call.
type UpsertResult struct {
	Kind      Kind           `json:"kind"`
	Table     string         `json:"table"`
	Strategy  string         `json:"strategy"`
	Batches   int            `json:"batches,omitempty"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []WriteOutcome `json:"-"`
}

// FileResult is the outcome of importing one object. It is only logged or
// published, never persisted.
type FileResult struct {
	Bucket    string        `json:"bucket"`
	Key       string        `json:"key"`
	Kind      Kind          `json:"kind,omitempty"`
	Rows      int           `json:"rows"`
	Skipped   int           `json:"skipped"`
	Upsert    *UpsertResult `json:"upsert,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
}
