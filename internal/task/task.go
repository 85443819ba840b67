// Package task defines the task and list records shared by the store, the
// sync protocol client, and the persistence layer.
//
// Records carry two client-side flags that never leave the machine in their
// own right: dirty (has a local mutation the server has not confirmed) and
// local (created here, never confirmed by a server-issued id). A local
// record is always dirty; a clean record always has a server-issued UUID.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// FileRef is an attachment reference. The engine only carries these; upload
// and download are handled elsewhere.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
	Hash string `json:"hash"`
	Path string `json:"path"`
}

// Task is one task record as held by the local store.
type Task struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Status               Status    `json:"status"`
	ListID               string    `json:"list_id"`
	MyDay                bool      `json:"my_day"`
	Priority             int       `json:"priority"` // 0-3
	Order                string    `json:"order"`
	URL                  string    `json:"url,omitempty"`
	Notes                string    `json:"notes,omitempty"`
	DueDate              string    `json:"due_date,omitempty"` // YYYY-MM-DD, local
	RecurrenceID         string    `json:"recurrence_id,omitempty"`
	OccurrencesCompleted int       `json:"occurrences_completed"`
	CompletedTS          int64     `json:"completed_ts,omitempty"` // epoch ms
	Attachments          []FileRef `json:"attachments,omitempty"`
	AssigneeUserID       string    `json:"assignee_user_id,omitempty"`
	CreatedByUserID      string    `json:"created_by_user_id,omitempty"`
	CreatedTS            int64     `json:"created_ts"` // epoch ms
	UpdatedTS            int64     `json:"updated_ts"` // epoch ms
	Dirty                bool      `json:"dirty,omitempty"`
	Local                bool      `json:"local,omitempty"`
}

// List is one task list. Lists are replaced wholesale on pull and are not
// part of the delta push protocol, so they carry no dirty/local flags.
type List struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Order string `json:"order"`
}

// Validate checks the record invariants.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.Priority < 0 || t.Priority > 3 {
		return fmt.Errorf("priority must be between 0 and 3 (got %d)", t.Priority)
	}
	if t.Local && !t.Dirty {
		return fmt.Errorf("local task %s must be dirty", t.ID)
	}
	if !t.Dirty && !IsServerID(t.ID) {
		return fmt.Errorf("clean task %s must have a server id", t.ID)
	}
	return nil
}

// IsServerID reports whether id has the canonical UUID shape issued by the
// server. Anything else (local- prefixed or ad hoc seed data) has never
// reached the server.
func IsServerID(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	// uuid.Parse accepts urn: and braced variants; only the plain
	// 8-4-4-4-12 form is a server id.
	return len(id) == 36
}

// NowMS is the clock used for record timestamps. Tests may override it.
var NowMS = func() int64 {
	return time.Now().UnixMilli()
}

// LocalOptions carries the optional fields of a locally created task.
type LocalOptions struct {
	MyDay          bool
	Status         Status
	Priority       int
	DueDate        string
	RecurrenceID   string
	URL            string
	Notes          string
	AssigneeUserID string
	CreatedBy      string
}

// NewLocal mints an optimistic local task. The id and order are prefixed
// "local-" so the record is recognizable as unconfirmed until a create push
// rewrites it.
func NewLocal(title, listID string, opts LocalOptions) Task {
	now := NowMS()
	status := opts.Status
	if status == "" {
		status = StatusPending
	}
	assignee := opts.AssigneeUserID
	if assignee == "" {
		assignee = opts.CreatedBy
	}
	return Task{
		ID:              fmt.Sprintf("local-%s", uuid.NewString()),
		Title:           title,
		Status:          status,
		ListID:          listID,
		MyDay:           opts.MyDay,
		Priority:        opts.Priority,
		Order:           fmt.Sprintf("local-%d", now),
		DueDate:         opts.DueDate,
		RecurrenceID:    opts.RecurrenceID,
		URL:             opts.URL,
		Notes:           opts.Notes,
		AssigneeUserID:  assignee,
		CreatedByUserID: opts.CreatedBy,
		CreatedTS:       now,
		UpdatedTS:       now,
		Dirty:           true,
		Local:           true,
	}
}
