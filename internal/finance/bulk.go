package finance

import (
	"errors"
	"fmt"
)

// ItemResult is the outcome of one item of a bulk operation.
type ItemResult struct {
	ID      string `json:"id,omitempty"`
	Row     int    `json:"row,omitempty"`
	OK      bool   `json:"ok"`
	Error   error  `json:"-"`
	Message string `json:"error,omitempty"`
}

// BulkResult collects per-item outcomes in request order.
type BulkResult struct {
	Items []ItemResult `json:"results"`
}

func (b *BulkResult) succeed(row int, id string) {
	b.Items = append(b.Items, ItemResult{ID: id, Row: row, OK: true})
}

func (b *BulkResult) fail(row int, id string, err error) {
	b.Items = append(b.Items, ItemResult{ID: id, Row: row, Error: err, Message: err.Error()})
}

// Succeeded counts successful items.
func (b BulkResult) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.OK {
			n++
		}
	}
	return n
}

// Failed counts failed items.
func (b BulkResult) Failed() int {
	return len(b.Items) - b.Succeeded()
}

// OK reports whether every item succeeded.
func (b BulkResult) OK() bool {
	return b.Failed() == 0
}

// SucceededIDs lists the ids of successful items.
func (b BulkResult) SucceededIDs() []string {
	ids := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		if item.OK {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// Retryable reports whether any failed item may succeed on retry.
func (b BulkResult) Retryable() bool {
	for _, item := range b.Items {
		if !item.OK && (Retryable(item.Error) || errors.Is(item.Error, ErrBatchAborted)) {
			return true
		}
	}
	return false
}

// Summary renders the outcome for the user. It never reads as a full success
// when an item failed.
func (b BulkResult) Summary(verb string) string {
	total := len(b.Items)
	ok := b.Succeeded()
	switch {
	case total == 0:
		return "no records " + verb
	case ok == total:
		return fmt.Sprintf("%d %s %s", ok, plural(ok), verb)
	case ok == 0:
		return fmt.Sprintf("no records %s; %d failed", verb, total)
	default:
		return fmt.Sprintf("%d of %d records %s; %d failed", ok, total, verb, total-ok)
	}
}

func plural(n int) string {
	if n == 1 {
		return "record"
	}
	return "records"
}
