// Package store is the single source of truth for tasks and lists within
// one client process.
//
// Every record-level mutator follows the same shape: compute the new
// fields, stamp updated_ts, set the dirty flag, and persist the whole set
// through the storage adapter. Persistence is fire-and-forget; readers use
// the in-memory copy and a failed write only costs durability, not
// correctness, because the next successful sync rebuilds it.
package store

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tasksync/tasksync/internal/recurrence"
	"github.com/tasksync/tasksync/internal/storage"
	"github.com/tasksync/tasksync/internal/task"
)

// Store holds the in-memory task and list caches for one process.
// It is safe for concurrent use; mutations are atomic from the caller's
// point of view.
type Store struct {
	adapter storage.Adapter
	logger  *log.Logger

	// OnCompletion fires when a toggle completes a task (or advances a
	// recurring one). The UI hangs the completion sound off this.
	OnCompletion func()

	mu    sync.Mutex
	tasks []task.Task
	lists []task.List
}

func trimTitle(title string) string {
	return strings.TrimSpace(title)
}

func isTodayMS(ts int64) bool {
	if ts <= 0 {
		return false
	}
	return recurrence.ToLocalISODate(time.UnixMilli(ts)) == recurrence.ToLocalISODate(time.Now())
}

// New creates a store over the given persistence adapter.
//
// If logger is nil, a default logger writing to stderr is used. The
// adapter may be nil for in-memory-only operation (tests, degraded mode).
func New(adapter storage.Adapter, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &Store{
		adapter: adapter,
		logger:  logger,
	}
}

// Hydrate loads tasks and lists from the persistence adapter.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.adapter == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	taskRecords, err := s.adapter.GetAll(ctx, storage.CollectionTasks)
	if err != nil {
		return err
	}
	listRecords, err := s.adapter.GetAll(ctx, storage.CollectionLists)
	if err != nil {
		return err
	}

	tasks := make([]task.Task, 0, len(taskRecords))
	for _, record := range taskRecords {
		var t task.Task
		if err := json.Unmarshal(record, &t); err != nil {
			s.logger.Printf("WARNING: skipping unreadable task record: %v", err)
			continue
		}
		tasks = append(tasks, t)
	}
	lists := make([]task.List, 0, len(listRecords))
	for _, record := range listRecords {
		var l task.List
		if err := json.Unmarshal(record, &l); err != nil {
			s.logger.Printf("WARNING: skipping unreadable list record: %v", err)
			continue
		}
		lists = append(lists, l)
	}

	s.tasks = tasks
	s.lists = lists
	return nil
}

// Persist writes the current task set through the adapter. Mutators call
// this themselves; the sync engine calls it once after a batch of changes.
func (s *Store) Persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistTasksLocked()
}

func (s *Store) persistTasksLocked() {
	if s.adapter == nil {
		return
	}
	ctx := context.Background()
	if err := s.adapter.Clear(ctx, storage.CollectionTasks); err != nil {
		s.logger.Printf("WARNING: failed to clear tasks collection: %v", err)
		return
	}
	for i := range s.tasks {
		record, err := json.Marshal(&s.tasks[i])
		if err != nil {
			s.logger.Printf("WARNING: failed to encode task %s: %v", s.tasks[i].ID, err)
			continue
		}
		if err := s.adapter.Put(ctx, storage.CollectionTasks, s.tasks[i].ID, record); err != nil {
			s.logger.Printf("WARNING: failed to persist task %s: %v", s.tasks[i].ID, err)
		}
	}
}

func (s *Store) persistListsLocked() {
	if s.adapter == nil {
		return
	}
	ctx := context.Background()
	if err := s.adapter.Clear(ctx, storage.CollectionLists); err != nil {
		s.logger.Printf("WARNING: failed to clear lists collection: %v", err)
		return
	}
	for i := range s.lists {
		record, err := json.Marshal(&s.lists[i])
		if err != nil {
			s.logger.Printf("WARNING: failed to encode list %s: %v", s.lists[i].ID, err)
			continue
		}
		if err := s.adapter.Put(ctx, storage.CollectionLists, s.lists[i].ID, record); err != nil {
			s.logger.Printf("WARNING: failed to persist list %s: %v", s.lists[i].ID, err)
		}
	}
}

// Snapshot returns a copy of the task set.
func (s *Store) Snapshot() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return s.tasks[i], true
		}
	}
	return task.Task{}, false
}

// SetAll replaces the task set.
func (s *Store) SetAll(tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]task.Task(nil), tasks...)
	s.persistTasksLocked()
}

// Add appends one task.
func (s *Store) Add(t task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.persistTasksLocked()
}

// DirtyCount returns the number of records with unpushed mutations.
func (s *Store) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.tasks {
		if s.tasks[i].Dirty {
			n++
		}
	}
	return n
}

// DirtyTasks returns a copy of every dirty record, in store order.
func (s *Store) DirtyTasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for i := range s.tasks {
		if s.tasks[i].Dirty {
			out = append(out, s.tasks[i])
		}
	}
	return out
}

// mutate applies fn to the task with the given id under the lock. When fn
// reports a change, updated_ts is stamped, the dirty flag set, and the set
// persisted. Returns whether a change was applied.
func (s *Store) mutate(id string, fn func(*task.Task) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		if !fn(&s.tasks[i]) {
			return false
		}
		s.tasks[i].UpdatedTS = task.NowMS()
		s.tasks[i].Dirty = true
		s.persistTasksLocked()
		return true
	}
	return false
}

// CreateLocal mints an optimistic local task and adds it to the store.
// An empty (or all-whitespace) title is ignored.
func (s *Store) CreateLocal(title, listID string, opts task.LocalOptions) (task.Task, bool) {
	trimmed := trimTitle(title)
	if trimmed == "" {
		return task.Task{}, false
	}
	t := task.NewLocal(trimmed, listID, opts)
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.persistTasksLocked()
	s.mu.Unlock()
	return t, true
}

// Rename sets a new title. Empty titles are ignored.
func (s *Store) Rename(id, title string) bool {
	trimmed := trimTitle(title)
	if trimmed == "" {
		return false
	}
	return s.mutate(id, func(t *task.Task) bool {
		t.Title = trimmed
		return true
	})
}

// SetDueDate sets or clears (empty string) the due date.
func (s *Store) SetDueDate(id, dueDate string) bool {
	return s.mutate(id, func(t *task.Task) bool {
		t.DueDate = dueDate
		return true
	})
}

// SetPriority sets the priority (clamped to 0-3).
func (s *Store) SetPriority(id string, priority int) bool {
	if priority < 0 {
		priority = 0
	}
	if priority > 3 {
		priority = 3
	}
	return s.mutate(id, func(t *task.Task) bool {
		t.Priority = priority
		return true
	})
}

// SetAssignee sets or clears the assignee.
func (s *Store) SetAssignee(id, assigneeUserID string) bool {
	return s.mutate(id, func(t *task.Task) bool {
		t.AssigneeUserID = assigneeUserID
		return true
	})
}

// SetMyDay flags or unflags the task for My Day.
func (s *Store) SetMyDay(id string, myDay bool) bool {
	return s.mutate(id, func(t *task.Task) bool {
		t.MyDay = myDay
		return true
	})
}

// MoveToList moves the task to another list.
func (s *Store) MoveToList(id, listID string) bool {
	return s.mutate(id, func(t *task.Task) bool {
		t.ListID = listID
		return true
	})
}

// Details carries optional detail updates; nil fields keep current values.
type Details struct {
	URL                  *string
	RecurrenceID         *string
	Attachments          []task.FileRef
	DueDate              *string
	Notes                *string
	OccurrencesCompleted *int
	CompletedTS          *int64
}

// UpdateDetails applies the non-nil fields of details.
func (s *Store) UpdateDetails(id string, details Details) bool {
	return s.mutate(id, func(t *task.Task) bool {
		if details.URL != nil {
			t.URL = *details.URL
		}
		if details.RecurrenceID != nil {
			t.RecurrenceID = *details.RecurrenceID
		}
		if details.Attachments != nil {
			t.Attachments = details.Attachments
		}
		if details.DueDate != nil {
			t.DueDate = *details.DueDate
		}
		if details.Notes != nil {
			t.Notes = *details.Notes
		}
		if details.OccurrencesCompleted != nil {
			t.OccurrencesCompleted = *details.OccurrencesCompleted
		}
		if details.CompletedTS != nil {
			t.CompletedTS = *details.CompletedTS
		}
		return true
	})
}

// Skip advances a recurring task's due date one step without counting a
// completion. Tasks without a valid rule are left untouched.
func (s *Store) Skip(id string) bool {
	return s.mutate(id, func(t *task.Task) bool {
		next, valid := recurrence.NextDue(t.DueDate, t.RecurrenceID)
		if !valid {
			return false
		}
		t.DueDate = next
		return true
	})
}

// Toggle flips a task between pending and done.
//
// A recurring task behaves as an oscillator, not a checkbox: completing it
// stamps completed_ts, counts the occurrence, and rolls due_date to the
// next occurrence while status stays pending. Non-recurring tasks flip the
// status and set or clear completed_ts.
func (s *Store) Toggle(id string) bool {
	completed := false
	ok := s.mutate(id, func(t *task.Task) bool {
		now := task.NowMS()
		if recurrence.IsValid(t.RecurrenceID) && t.Status != task.StatusDone {
			completed = true
			if next, valid := recurrence.NextDue(t.DueDate, t.RecurrenceID); valid {
				t.DueDate = next
			}
			t.Status = task.StatusPending
			t.OccurrencesCompleted++
			t.CompletedTS = now
			return true
		}
		if t.Status == task.StatusDone {
			t.Status = task.StatusPending
			t.CompletedTS = 0
		} else {
			t.Status = task.StatusDone
			t.CompletedTS = now
			completed = true
		}
		return true
	})
	if ok && completed && s.OnCompletion != nil {
		s.OnCompletion()
	}
	return ok
}

// UndoRecurringCompletion rolls back a same-day completion of a recurring
// task: due date back one step, occurrence counter down (floor 0),
// completed_ts cleared. It only applies when the task is pending, carries a
// valid rule, and completed_ts falls on today's local date. This is the one
// exception to toggle idempotence, because recurring tasks have no
// symmetric done/pending flip to undo through.
func (s *Store) UndoRecurringCompletion(id string) bool {
	return s.mutate(id, func(t *task.Task) bool {
		if !recurrence.IsValid(t.RecurrenceID) || t.Status != task.StatusPending {
			return false
		}
		if !isTodayMS(t.CompletedTS) {
			return false
		}
		if prev, valid := recurrence.PrevDue(t.DueDate, t.RecurrenceID); valid {
			t.DueDate = prev
		}
		if t.OccurrencesCompleted > 0 {
			t.OccurrencesCompleted--
		}
		t.CompletedTS = 0
		return true
	})
}

// MergeRemote overlays a batch of server-authoritative tasks onto the local
// set. A dirty local record represents user intent the server has not
// acknowledged, so a remote copy only replaces records that are clean.
func (s *Store) MergeRemote(remote []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]task.Task, len(s.tasks))
	copy(merged, s.tasks)
	index := make(map[string]int, len(merged))
	for i := range merged {
		index[merged[i].ID] = i
	}
	for _, r := range remote {
		if i, ok := index[r.ID]; ok {
			if merged[i].Dirty {
				continue
			}
			merged[i] = r
			continue
		}
		index[r.ID] = len(merged)
		merged = append(merged, r)
	}
	s.tasks = merged
	s.persistTasksLocked()
}

// ClearDirty marks the record as confirmed without changing its fields.
func (s *Store) ClearDirty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Dirty = false
			s.persistTasksLocked()
			return
		}
	}
}

// Remove drops the record from the store.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	s.persistTasksLocked()
}

// ReplaceWithRemote swaps a pushed record for its server-confirmed copy.
//
// If the local record mutated again after the push snapshot was taken
// (detected by comparing against sent), the local field values win but the
// server id is adopted and the record stays dirty so the next push carries
// the newer edit. Otherwise the server copy is adopted verbatim and the
// dirty and local flags are cleared.
func (s *Store) ReplaceWithRemote(localID string, remote task.Task, sent *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID != localID {
			continue
		}
		if sent != nil && changedSinceSent(&s.tasks[i], sent) {
			s.tasks[i].ID = remote.ID
			s.tasks[i].Local = false
			s.tasks[i].Dirty = true
		} else {
			remote.Dirty = false
			remote.Local = false
			s.tasks[i] = remote
		}
		s.persistTasksLocked()
		return
	}
}

// changedSinceSent reports whether the user edited the record after the
// push snapshot was taken.
func changedSinceSent(current, sent *task.Task) bool {
	if current.Title != sent.Title ||
		current.Status != sent.Status ||
		current.ListID != sent.ListID ||
		current.MyDay != sent.MyDay ||
		current.Order != sent.Order ||
		current.URL != sent.URL ||
		current.RecurrenceID != sent.RecurrenceID ||
		current.DueDate != sent.DueDate ||
		current.CompletedTS != sent.CompletedTS ||
		current.Notes != sent.Notes ||
		current.AssigneeUserID != sent.AssigneeUserID ||
		current.OccurrencesCompleted != sent.OccurrencesCompleted {
		return true
	}
	currentAttachments, _ := json.Marshal(current.Attachments)
	sentAttachments, _ := json.Marshal(sent.Attachments)
	return string(currentAttachments) != string(sentAttachments)
}

// SetAllLists replaces the list set wholesale (lists are not part of the
// delta protocol).
func (s *Store) SetAllLists(lists []task.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append([]task.List(nil), lists...)
	s.persistListsLocked()
}

// ListsSnapshot returns a copy of the list set.
func (s *Store) ListsSnapshot() []task.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.List, len(s.lists))
	copy(out, s.lists)
	return out
}

// PendingCount returns the number of pending tasks, for list badges.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.tasks {
		if s.tasks[i].Status == task.StatusPending {
			n++
		}
	}
	return n
}
