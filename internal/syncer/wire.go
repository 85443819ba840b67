package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/tasksync/tasksync/internal/task"
)

// ProtocolVersion identifies the delta sync wire contract.
const ProtocolVersion = "delta-v1"

// WireTask is the server's representation of a task. Booleans travel as
// 0/1 and attachments as a serialized JSON string.
type WireTask struct {
	ID                   string `json:"id"`
	SpaceID              string `json:"space_id,omitempty"`
	Title                string `json:"title"`
	Status               string `json:"status"`
	ListID               string `json:"list_id"`
	MyDay                int    `json:"my_day"`
	Order                string `json:"order"`
	UpdatedTS            int64  `json:"updated_ts"`
	CreatedTS            int64  `json:"created_ts"`
	URL                  string `json:"url,omitempty"`
	RecurRule            string `json:"recur_rule,omitempty"`
	Attachments          string `json:"attachments,omitempty"`
	DueDate              string `json:"due_date,omitempty"`
	OccurrencesCompleted int    `json:"occurrences_completed,omitempty"`
	Notes                string `json:"notes,omitempty"`
	AssigneeUserID       string `json:"assignee_user_id,omitempty"`
	CreatedByUserID      string `json:"created_by_user_id,omitempty"`
	CompletedTS          int64  `json:"completed_ts,omitempty"`
}

// WireList is the server's representation of a list.
type WireList struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id,omitempty"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Color   string `json:"color,omitempty"`
	Order   string `json:"order"`
}

// PullRequest asks for all changes since the cursor. A nil SinceTS requests
// a full resync.
type PullRequest struct {
	SinceTS *int64 `json:"since_ts,omitempty"`
}

// PullResponse carries the new cursor and the changed records.
type PullResponse struct {
	Protocol string     `json:"protocol"`
	CursorTS int64      `json:"cursor_ts"`
	Lists    []WireList `json:"lists"`
	Tasks    []WireTask `json:"tasks"`
}

// ChangeKind tags a push sub-operation.
type ChangeKind string

const (
	KindCreateTask ChangeKind = "create_task"
	KindUpdateTask ChangeKind = "update_task"
	// KindUpdateTaskStatus exists on the wire but the client never emits
	// it; the full-field update_task subsumes it.
	KindUpdateTaskStatus ChangeKind = "update_task_status"
)

// Change is one push sub-operation. The concrete types form a closed union
// so rejection classification can switch exhaustively on Kind().
type Change interface {
	Kind() ChangeKind
	OpID() string
	json.Marshaler
}

// CreateTaskBody is the payload of a create_task change.
type CreateTaskBody struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title"`
	ListID         string `json:"list_id"`
	Order          string `json:"order,omitempty"`
	MyDay          bool   `json:"my_day,omitempty"`
	URL            string `json:"url,omitempty"`
	RecurRule      string `json:"recur_rule,omitempty"`
	Attachments    string `json:"attachments,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	Notes          string `json:"notes,omitempty"`
	AssigneeUserID string `json:"assignee_user_id,omitempty"`
}

// UpdateTaskBody is the payload of an update_task change. It carries the
// full mutable field set so one op per task covers any combination of
// edits.
type UpdateTaskBody struct {
	Title                string `json:"title"`
	Status               string `json:"status"`
	ListID               string `json:"list_id"`
	MyDay                bool   `json:"my_day"`
	URL                  string `json:"url,omitempty"`
	RecurRule            string `json:"recur_rule,omitempty"`
	Attachments          string `json:"attachments,omitempty"`
	DueDate              string `json:"due_date,omitempty"`
	Notes                string `json:"notes,omitempty"`
	OccurrencesCompleted int    `json:"occurrences_completed"`
	AssigneeUserID       string `json:"assignee_user_id,omitempty"`
	CompletedTS          int64  `json:"completed_ts,omitempty"`
}

// CreateTaskChange creates a task that only exists locally.
type CreateTaskChange struct {
	ID   string
	Body CreateTaskBody
}

func (c CreateTaskChange) Kind() ChangeKind { return KindCreateTask }
func (c CreateTaskChange) OpID() string     { return c.ID }

func (c CreateTaskChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind ChangeKind     `json:"kind"`
		OpID string         `json:"op_id"`
		Body CreateTaskBody `json:"body"`
	}{KindCreateTask, c.ID, c.Body})
}

// UpdateTaskChange updates a server-confirmed task.
type UpdateTaskChange struct {
	ID     string
	TaskID string
	Body   UpdateTaskBody
}

func (c UpdateTaskChange) Kind() ChangeKind { return KindUpdateTask }
func (c UpdateTaskChange) OpID() string     { return c.ID }

func (c UpdateTaskChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind   ChangeKind     `json:"kind"`
		OpID   string         `json:"op_id"`
		TaskID string         `json:"task_id"`
		Body   UpdateTaskBody `json:"body"`
	}{KindUpdateTask, c.ID, c.TaskID, c.Body})
}

// PushRequest submits one batch of changes.
type PushRequest struct {
	Changes []Change `json:"changes"`
}

// Rejected reports one refused sub-operation.
type Rejected struct {
	OpID   string `json:"op_id"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// PushResponse carries the new cursor, the applied records (positionally
// correlated to the non-rejected ops in submission order), and the
// rejections.
type PushResponse struct {
	Protocol string     `json:"protocol"`
	CursorTS int64      `json:"cursor_ts"`
	Applied  []WireTask `json:"applied"`
	Rejected []Rejected `json:"rejected"`
}

// taskFromWire converts a server record into a clean local record.
func taskFromWire(w WireTask) task.Task {
	t := task.Task{
		ID:                   w.ID,
		Title:                w.Title,
		Status:               task.Status(w.Status),
		ListID:               w.ListID,
		MyDay:                w.MyDay == 1,
		Order:                w.Order,
		URL:                  w.URL,
		Notes:                w.Notes,
		DueDate:              w.DueDate,
		RecurrenceID:         w.RecurRule,
		OccurrencesCompleted: w.OccurrencesCompleted,
		CompletedTS:          w.CompletedTS,
		AssigneeUserID:       w.AssigneeUserID,
		CreatedByUserID:      w.CreatedByUserID,
		CreatedTS:            w.CreatedTS,
		UpdatedTS:            w.UpdatedTS,
		Dirty:                false,
		Local:                false,
	}
	if w.Attachments != "" {
		var refs []task.FileRef
		if err := json.Unmarshal([]byte(w.Attachments), &refs); err == nil {
			t.Attachments = refs
		}
	}
	return t
}

func listFromWire(w WireList) task.List {
	return task.List{
		ID:    w.ID,
		Name:  w.Name,
		Icon:  w.Icon,
		Color: w.Color,
		Order: w.Order,
	}
}

// attachmentsJSON serializes the attachment list for the wire. An empty
// list travels as the empty string.
func attachmentsJSON(refs []task.FileRef) string {
	if len(refs) == 0 {
		return ""
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return ""
	}
	return string(data)
}

func createChange(index int, t task.Task) CreateTaskChange {
	return CreateTaskChange{
		ID: fmt.Sprintf("create-%d", index),
		Body: CreateTaskBody{
			Title:          t.Title,
			ListID:         t.ListID,
			Order:          t.Order,
			MyDay:          t.MyDay,
			URL:            t.URL,
			RecurRule:      t.RecurrenceID,
			Attachments:    attachmentsJSON(t.Attachments),
			DueDate:        t.DueDate,
			Notes:          t.Notes,
			AssigneeUserID: t.AssigneeUserID,
		},
	}
}

func updateChange(index int, t task.Task) UpdateTaskChange {
	return UpdateTaskChange{
		ID:     fmt.Sprintf("update-%d", index),
		TaskID: t.ID,
		Body: UpdateTaskBody{
			Title:                t.Title,
			Status:               string(t.Status),
			ListID:               t.ListID,
			MyDay:                t.MyDay,
			URL:                  t.URL,
			RecurRule:            t.RecurrenceID,
			Attachments:          attachmentsJSON(t.Attachments),
			DueDate:              t.DueDate,
			Notes:                t.Notes,
			OccurrencesCompleted: t.OccurrencesCompleted,
			AssigneeUserID:       t.AssigneeUserID,
			CompletedTS:          t.CompletedTS,
		},
	}
}
