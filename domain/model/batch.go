package model

import "errors"

// Batch is one notifier delivery. Paths are absolute.
type Batch struct {
	Modified []string
	Added    []string
	Removed  []string
}

// Len returns the number of paths in the batch
func (b Batch) Len() int {
	return len(b.Modified) + len(b.Added) + len(b.Removed)
}

func (b Batch) IsEmpty() bool {
	return b.Len() == 0
}

// ResultStatus classifies how processing of one path ended
type ResultStatus string

const (
	StatusSuccess     ResultStatus = "success"
	StatusRecoverable ResultStatus = "recoverable"
	StatusFatal       ResultStatus = "fatal"
)

// PathResult is the outcome of processing one path of a batch
type PathResult struct {
	Path   string
	Type   EventType
	Status ResultStatus
	Err    error
}

// NewPathResult classifies err into a result status
func NewPathResult(path string, eventType EventType, err error) PathResult {
	return PathResult{
		Path:   path,
		Type:   eventType,
		Status: Classify(err),
		Err:    err,
	}
}

// Classify maps an event processing error to its status.
// Anything not known to be local to the file is fatal for that path.
func Classify(err error) ResultStatus {
	if err == nil {
		return StatusSuccess
	}

	var accessErr *AccessError
	var parseErr *ParseError
	switch {
	case errors.As(err, &accessErr),
		errors.As(err, &parseErr),
		errors.Is(err, ErrPreviousVersionNotFound):
		return StatusRecoverable
	default:
		return StatusFatal
	}
}

// BatchResult collects the per-path results of one batch, in processing order
type BatchResult struct {
	Results []PathResult
}

func (r *BatchResult) Add(result PathResult) {
	r.Results = append(r.Results, result)
}

// Failed returns the results that did not succeed
func (r *BatchResult) Failed() []PathResult {
	var failed []PathResult
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			failed = append(failed, res)
		}
	}
	return failed
}

// Count returns how many results have the given status
func (r *BatchResult) Count(status ResultStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}
