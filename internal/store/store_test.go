package store

import (
	"log"
	"strings"
	"testing"
	"time"

	"github.com/tasksync/tasksync/internal/recurrence"
	"github.com/tasksync/tasksync/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(nil, log.New(testWriter{t}, "[store] ", 0))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func addTask(t *testing.T, s *Store, tk task.Task) task.Task {
	t.Helper()
	if tk.Status == "" {
		tk.Status = task.StatusPending
	}
	s.Add(tk)
	return tk
}

// TestCreateLocal_TrimsAndRejectsEmptyTitles covers title normalization.
func TestCreateLocal_TrimsAndRejectsEmptyTitles(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.CreateLocal("   ", "list-1", task.LocalOptions{}); ok {
		t.Error("expected whitespace title to be rejected")
	}
	created, ok := s.CreateLocal("  Buy milk  ", "list-1", task.LocalOptions{})
	if !ok {
		t.Fatal("CreateLocal failed")
	}
	if created.Title != "Buy milk" {
		t.Errorf("Title = %q, want trimmed", created.Title)
	}
	if !created.Dirty || !created.Local {
		t.Errorf("Dirty/Local = %v/%v, want true/true", created.Dirty, created.Local)
	}
	if s.DirtyCount() != 1 {
		t.Errorf("DirtyCount = %d, want 1", s.DirtyCount())
	}
}

// TestRename_StampsDirtyAndUpdatedTS checks the shared mutator behavior.
func TestRename_StampsDirtyAndUpdatedTS(t *testing.T) {
	restore := task.NowMS
	task.NowMS = func() int64 { return 42000 }
	defer func() { task.NowMS = restore }()

	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "old"})

	if !s.Rename("t1", "new") {
		t.Fatal("Rename failed")
	}
	got, _ := s.Get("t1")
	if got.Title != "new" || !got.Dirty || got.UpdatedTS != 42000 {
		t.Errorf("after rename: %+v", got)
	}

	if s.Rename("t1", "   ") {
		t.Error("expected empty rename to be rejected")
	}
	if s.Rename("missing", "x") {
		t.Error("expected rename of unknown id to fail")
	}
}

// TestSetPriority_Clamps verifies the 0-3 clamp.
func TestSetPriority_Clamps(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "x"})

	s.SetPriority("t1", 9)
	if got, _ := s.Get("t1"); got.Priority != 3 {
		t.Errorf("Priority = %d, want 3", got.Priority)
	}
	s.SetPriority("t1", -2)
	if got, _ := s.Get("t1"); got.Priority != 0 {
		t.Errorf("Priority = %d, want 0", got.Priority)
	}
}

// TestToggle_NonRecurringFlipsStatus checks the plain checkbox behavior.
func TestToggle_NonRecurringFlipsStatus(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "x"})

	completions := 0
	s.OnCompletion = func() { completions++ }

	s.Toggle("t1")
	got, _ := s.Get("t1")
	if got.Status != task.StatusDone || got.CompletedTS == 0 {
		t.Errorf("after first toggle: %+v", got)
	}
	if completions != 1 {
		t.Errorf("completions = %d, want 1", completions)
	}

	s.Toggle("t1")
	got, _ = s.Get("t1")
	if got.Status != task.StatusPending || got.CompletedTS != 0 {
		t.Errorf("after second toggle: %+v", got)
	}
	if completions != 1 {
		t.Errorf("un-toggling fired completion: %d", completions)
	}
}

// TestToggle_RecurringAdvancesDueDate checks the oscillator behavior: the
// status never reaches done, the occurrence counts up, and the due date
// rolls forward.
func TestToggle_RecurringAdvancesDueDate(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{
		ID: "t1", Title: "standup", RecurrenceID: "daily", DueDate: "2026-02-02",
	})

	if !s.Toggle("t1") {
		t.Fatal("Toggle failed")
	}
	got, _ := s.Get("t1")
	if got.Status != task.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.DueDate != "2026-02-03" {
		t.Errorf("DueDate = %s, want 2026-02-03", got.DueDate)
	}
	if got.OccurrencesCompleted != 1 {
		t.Errorf("OccurrencesCompleted = %d, want 1", got.OccurrencesCompleted)
	}
	if got.CompletedTS == 0 || !got.Dirty {
		t.Errorf("CompletedTS/Dirty = %d/%v", got.CompletedTS, got.Dirty)
	}

	// Completing again the same day advances another step.
	s.Toggle("t1")
	got, _ = s.Get("t1")
	if got.DueDate != "2026-02-04" || got.OccurrencesCompleted != 2 {
		t.Errorf("after second toggle: due %s, occurrences %d", got.DueDate, got.OccurrencesCompleted)
	}
}

// TestToggle_RecurringDoneFlipsBackToPending covers a recurring task that
// somehow arrived in done state (server data): toggling it un-completes.
func TestToggle_RecurringDoneFlipsBackToPending(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{
		ID: "t1", Title: "x", RecurrenceID: "weekly",
		Status: task.StatusDone, CompletedTS: 123, DueDate: "2026-02-02",
	})

	s.Toggle("t1")
	got, _ := s.Get("t1")
	if got.Status != task.StatusPending || got.CompletedTS != 0 {
		t.Errorf("after toggle: %+v", got)
	}
	if got.DueDate != "2026-02-02" {
		t.Errorf("DueDate moved on un-complete: %s", got.DueDate)
	}
}

// TestSkip_AdvancesWithoutCounting verifies skip rolls the date only.
func TestSkip_AdvancesWithoutCounting(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "x", RecurrenceID: "weekly", DueDate: "2026-02-02"})
	addTask(t, s, task.Task{ID: "t2", Title: "y", DueDate: "2026-02-02"})

	if !s.Skip("t1") {
		t.Fatal("Skip failed")
	}
	got, _ := s.Get("t1")
	if got.DueDate != "2026-02-09" {
		t.Errorf("DueDate = %s, want 2026-02-09", got.DueDate)
	}
	if got.OccurrencesCompleted != 0 || got.CompletedTS != 0 {
		t.Errorf("Skip counted a completion: %+v", got)
	}

	if s.Skip("t2") {
		t.Error("Skip succeeded on a non-recurring task")
	}
	if got, _ := s.Get("t2"); got.Dirty {
		t.Error("failed skip still dirtied the record")
	}
}

// TestUndoRecurringCompletion_SameDay rolls back due date, counter, and
// completion stamp.
func TestUndoRecurringCompletion_SameDay(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "x", RecurrenceID: "daily", DueDate: "2026-02-02"})

	s.Toggle("t1")
	if !s.UndoRecurringCompletion("t1") {
		t.Fatal("UndoRecurringCompletion failed")
	}
	got, _ := s.Get("t1")
	if got.DueDate != "2026-02-02" {
		t.Errorf("DueDate = %s, want 2026-02-02", got.DueDate)
	}
	if got.OccurrencesCompleted != 0 || got.CompletedTS != 0 {
		t.Errorf("after undo: %+v", got)
	}
}

// TestUndoRecurringCompletion_Guards rejects stale or inapplicable undos.
func TestUndoRecurringCompletion_Guards(t *testing.T) {
	s := newTestStore(t)
	yesterday := time.Now().AddDate(0, 0, -1).UnixMilli()
	addTask(t, s, task.Task{
		ID: "stale", Title: "x", RecurrenceID: "daily",
		DueDate: "2026-02-03", CompletedTS: yesterday, OccurrencesCompleted: 1,
	})
	addTask(t, s, task.Task{ID: "plain", Title: "y", CompletedTS: time.Now().UnixMilli()})
	addTask(t, s, task.Task{
		ID: "done", Title: "z", RecurrenceID: "daily",
		Status: task.StatusDone, CompletedTS: time.Now().UnixMilli(),
	})

	if s.UndoRecurringCompletion("stale") {
		t.Error("undo applied to a completion from a previous day")
	}
	if s.UndoRecurringCompletion("plain") {
		t.Error("undo applied to a non-recurring task")
	}
	if s.UndoRecurringCompletion("done") {
		t.Error("undo applied to a done task")
	}
	for _, id := range []string{"stale", "plain", "done"} {
		if got, _ := s.Get(id); got.Dirty {
			t.Errorf("failed undo dirtied %s", id)
		}
	}
}

// TestMergeRemote_DirtyLocalWins verifies pull reconciliation keeps
// unacknowledged local intent.
func TestMergeRemote_DirtyLocalWins(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "a", Title: "local edit", Dirty: true})
	addTask(t, s, task.Task{ID: "b", Title: "clean old"})

	s.MergeRemote([]task.Task{
		{ID: "a", Title: "server copy", Status: task.StatusPending},
		{ID: "b", Title: "server new", Status: task.StatusPending},
		{ID: "c", Title: "brand new", Status: task.StatusPending},
	})

	if got, _ := s.Get("a"); got.Title != "local edit" || !got.Dirty {
		t.Errorf("dirty record overwritten: %+v", got)
	}
	if got, _ := s.Get("b"); got.Title != "server new" {
		t.Errorf("clean record not updated: %+v", got)
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("new remote record not added")
	}
	if n := len(s.Snapshot()); n != 3 {
		t.Errorf("task count = %d, want 3", n)
	}
}

// TestReplaceWithRemote_CleanSwap adopts the server copy and clears flags.
func TestReplaceWithRemote_CleanSwap(t *testing.T) {
	s := newTestStore(t)
	sent := addTask(t, s, task.Task{ID: "local-1", Title: "x", Dirty: true, Local: true})

	remote := task.Task{ID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", Title: "x", Order: "srv-5"}
	s.ReplaceWithRemote("local-1", remote, &sent)

	if _, ok := s.Get("local-1"); ok {
		t.Error("local id still present")
	}
	got, ok := s.Get(remote.ID)
	if !ok {
		t.Fatal("server record missing")
	}
	if got.Dirty || got.Local {
		t.Errorf("flags not cleared: %+v", got)
	}
	if got.Order != "srv-5" {
		t.Errorf("server fields not adopted: %+v", got)
	}
}

// TestReplaceWithRemote_InFlightEditKeptDirty covers the race where the
// user edits between snapshot and confirmation: local fields win, the
// server id is adopted, and the record stays dirty for the next push.
func TestReplaceWithRemote_InFlightEditKeptDirty(t *testing.T) {
	s := newTestStore(t)
	sent := addTask(t, s, task.Task{ID: "local-1", Title: "x", Dirty: true, Local: true})

	// Edit lands while the push is in flight.
	s.Rename("local-1", "x edited")

	remote := task.Task{ID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", Title: "x"}
	s.ReplaceWithRemote("local-1", remote, &sent)

	got, ok := s.Get(remote.ID)
	if !ok {
		t.Fatal("server id not adopted")
	}
	if got.Title != "x edited" {
		t.Errorf("local edit lost: %q", got.Title)
	}
	if !got.Dirty {
		t.Error("record no longer dirty; the in-flight edit will never push")
	}
	if got.Local {
		t.Error("record still marked local after id adoption")
	}
}

// TestClearDirtyAndRemove covers the rejection handlers' store calls.
func TestClearDirtyAndRemove(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "a", Title: "x", Dirty: true})
	addTask(t, s, task.Task{ID: "b", Title: "y", Dirty: true})

	s.ClearDirty("a")
	if got, _ := s.Get("a"); got.Dirty {
		t.Error("ClearDirty left the flag set")
	}
	if got, _ := s.Get("a"); got.Title != "x" {
		t.Error("ClearDirty changed fields")
	}

	s.Remove("b")
	if _, ok := s.Get("b"); ok {
		t.Error("Remove left the record")
	}
	if s.DirtyCount() != 0 {
		t.Errorf("DirtyCount = %d, want 0", s.DirtyCount())
	}
}

// TestUpdateDetails_NilFieldsKeepValues checks partial detail updates.
func TestUpdateDetails_NilFieldsKeepValues(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "t1", Title: "x", Notes: "keep", URL: "http://old"})

	newURL := "http://new"
	s.UpdateDetails("t1", Details{URL: &newURL})
	got, _ := s.Get("t1")
	if got.URL != "http://new" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.Notes != "keep" {
		t.Errorf("Notes = %q, nil field overwrote", got.Notes)
	}

	rule := "weekly"
	if !recurrence.IsValid(rule) {
		t.Fatal("fixture rule invalid")
	}
	empty := ""
	s.UpdateDetails("t1", Details{RecurrenceID: &rule, Notes: &empty})
	got, _ = s.Get("t1")
	if got.RecurrenceID != "weekly" || got.Notes != "" {
		t.Errorf("after second update: %+v", got)
	}
}

// TestListsSnapshot_ReplacedWholesale verifies list handling.
func TestListsSnapshot_ReplacedWholesale(t *testing.T) {
	s := newTestStore(t)
	s.SetAllLists([]task.List{{ID: "l1", Name: "Inbox"}, {ID: "l2", Name: "Work"}})
	s.SetAllLists([]task.List{{ID: "l2", Name: "Work"}})
	lists := s.ListsSnapshot()
	if len(lists) != 1 || lists[0].ID != "l2" {
		t.Errorf("lists = %+v, want just l2", lists)
	}
}

// TestPendingCount ignores done and cancelled tasks.
func TestPendingCount(t *testing.T) {
	s := newTestStore(t)
	addTask(t, s, task.Task{ID: "a", Title: "x"})
	addTask(t, s, task.Task{ID: "b", Title: "y", Status: task.StatusDone})
	addTask(t, s, task.Task{ID: "c", Title: "z", Status: task.StatusCancelled})
	if got := s.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1", got)
	}
}
