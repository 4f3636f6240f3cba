package domain

import "encoding/json"

// BatchOperation names a per-item action the batch processor can run.
type BatchOperation string

const (
	OpFetch   BatchOperation = "fetch"
	OpAnalyze BatchOperation = "analyze"
	OpSearch  BatchOperation = "search"
	OpExtract BatchOperation = "extract"
)

// KnownOperation reports whether op is a supported batch operation.
func KnownOperation(op BatchOperation) bool {
	switch op {
	case OpFetch, OpAnalyze, OpSearch, OpExtract:
		return true
	}
	return false
}

// BatchItemResult is the outcome for one input item. Index is the item's
// position in the submitted input, so callers can correlate results even
// though items run concurrently.
type BatchItemResult struct {
	Target    string          `json:"target"`
	Index     int             `json:"index"`
	Operation BatchOperation  `json:"operation"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// BatchReport aggregates a full batch run. Results holds exactly one entry
// per input item, in input order.
type BatchReport struct {
	JobID        string            `json:"job_id"`
	Operation    BatchOperation    `json:"operation"`
	Total        int               `json:"total"`
	Successful   int               `json:"successful"`
	Failed       int               `json:"failed"`
	ProcessingMS int64             `json:"processing_ms"`
	AverageMS    int64             `json:"average_ms"`
	Results      []BatchItemResult `json:"results"`
}
