// Package ledger manages the durable record of work items and their
// completion state.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// Sentinel errors for ledger failures. ErrMalformed is fatal at startup;
// ErrUnknownItem indicates an internal invariant violation.
var (
	ErrMalformed   = errors.New("malformed ledger")
	ErrUnknownItem = errors.New("unknown work item")
)

// WorkItem is one unit of work tracked by the ledger.
type WorkItem struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	Priority           int      `json:"priority"`
	Passes             bool     `json:"passes"`
	Notes              string   `json:"notes,omitempty"`
}

// Ledger is the ordered set of work items plus context metadata.
type Ledger struct {
	Project     string     `json:"project"`
	BranchName  string     `json:"branchName"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Items       []WorkItem `json:"items"`
}

// NextPending returns the pending work item with the smallest priority.
// Ties resolve to the first-listed item. Returns nil when nothing is pending.
func (l *Ledger) NextPending() *WorkItem {
	var next *WorkItem
	for i := range l.Items {
		item := &l.Items[i]
		if item.Passes {
			continue
		}
		if next == nil || item.Priority < next.Priority {
			next = item
		}
	}
	return next
}

// MarkComplete sets passes on the item with the given id. Marking an already
// complete item is a no-op. Returns ErrUnknownItem when the id is absent.
func (l *Ledger) MarkComplete(id string) error {
	for i := range l.Items {
		if l.Items[i].ID == id {
			l.Items[i].Passes = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownItem, id)
}

// Item returns the work item with the given id.
func (l *Ledger) Item(id string) (*WorkItem, bool) {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return &l.Items[i], true
		}
	}
	return nil, false
}

// RemainingCount returns the number of items that do not pass yet.
func (l *Ledger) RemainingCount() int {
	n := 0
	for i := range l.Items {
		if !l.Items[i].Passes {
			n++
		}
	}
	return n
}

// CompletedCount returns the number of items that pass.
func (l *Ledger) CompletedCount() int {
	return len(l.Items) - l.RemainingCount()
}

// NewAdHocItem builds a work item for single-task mode. The item carries a
// generated id and is never written to the ledger file.
func NewAdHocItem(description string) WorkItem {
	title := description
	if len(title) > 72 {
		title = title[:72]
	}
	return WorkItem{
		ID:                 xid.New().String(),
		Title:              title,
		Description:        description,
		AcceptanceCriteria: []string{description},
		Priority:           1,
	}
}
