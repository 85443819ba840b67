package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tasksync/tasksync/internal/storage"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestOpen_CreatesDirectoryAndSchema tests opening into a missing directory.
func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var count int
	err = s.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='records'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Error("records table does not exist")
	}
}

// TestPut_InsertThenUpdate tests the upsert path.
func TestPut_InsertThenUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, storage.CollectionTasks, "t1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, storage.CollectionTasks, "t1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("Put() update failed: %v", err)
	}

	records, err := s.GetAll(ctx, storage.CollectionTasks)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if string(records[0]) != `{"v":2}` {
		t.Errorf("record = %s, want updated value", records[0])
	}
}

// TestGetAll_CollectionsAreIsolated tests that tasks and lists do not mix.
func TestGetAll_CollectionsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, storage.CollectionTasks, "t1", []byte(`"task"`))
	_ = s.Put(ctx, storage.CollectionLists, "l1", []byte(`"list"`))
	_ = s.Put(ctx, storage.CollectionLists, "l2", []byte(`"list"`))

	tasks, err := s.GetAll(ctx, storage.CollectionTasks)
	if err != nil {
		t.Fatalf("GetAll(tasks) failed: %v", err)
	}
	lists, err := s.GetAll(ctx, storage.CollectionLists)
	if err != nil {
		t.Fatalf("GetAll(lists) failed: %v", err)
	}
	if len(tasks) != 1 || len(lists) != 2 {
		t.Errorf("got %d tasks / %d lists, want 1/2", len(tasks), len(lists))
	}
}

// TestClear_RemovesOnlyOneCollection tests collection-scoped clearing.
func TestClear_RemovesOnlyOneCollection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, storage.CollectionTasks, "t1", []byte(`1`))
	_ = s.Put(ctx, storage.CollectionLists, "l1", []byte(`1`))

	if err := s.Clear(ctx, storage.CollectionTasks); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	tasks, _ := s.GetAll(ctx, storage.CollectionTasks)
	lists, _ := s.GetAll(ctx, storage.CollectionLists)
	if len(tasks) != 0 {
		t.Errorf("tasks not cleared: %d left", len(tasks))
	}
	if len(lists) != 1 {
		t.Errorf("clear leaked into lists: %d left", len(lists))
	}
}

// TestDelete_UnknownIDIsNoError tests idempotent deletes.
func TestDelete_UnknownIDIsNoError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, storage.CollectionTasks, "t1", []byte(`1`))
	if err := s.Delete(ctx, storage.CollectionTasks, "t1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, storage.CollectionTasks, "t1"); err != nil {
		t.Errorf("Delete() of missing id failed: %v", err)
	}
}

// TestReopen_DataSurvives tests durability across close and open.
func TestReopen_DataSurvives(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Put(ctx, storage.CollectionTasks, "t1", []byte(`"kept"`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()
	records, err := s.GetAll(ctx, storage.CollectionTasks)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(records) != 1 || string(records[0]) != `"kept"` {
		t.Errorf("records = %v, want the persisted record", records)
	}
}

// TestPath_DefaultsIdentity tests the per-identity file layout.
func TestPath_DefaultsIdentity(t *testing.T) {
	got := Path("/data", "alice")
	want := filepath.Join("/data", "alice", "tasksync.db")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	got = Path("/data", "")
	want = filepath.Join("/data", "default", "tasksync.db")
	if got != want {
		t.Errorf("Path with empty identity = %q, want %q", got, want)
	}
}
