// Package syncer drives the cursor-based delta pull/push protocol against
// the sync server and translates responses into store mutations and status
// updates.
//
// The cursor is explicit state owned by the Syncer, not ambient module
// state, so a Syncer can be instantiated per identity and tested in
// isolation. Pull is idempotent given a correct cursor; push submits one
// batched request and resolves every rejection independently, so no failure
// here is fatal: the next attempt can always make forward progress.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/store"
	"github.com/tasksync/tasksync/internal/task"
)

// Syncer owns the sync cursor and runs pull/push cycles.
type Syncer struct {
	api    API
	store  *store.Store
	status *status.Store
	logger *log.Logger

	mu     sync.Mutex
	cursor *int64 // nil forces a full resync
}

// New creates a Syncer. If logger is nil, a default logger writing to
// stderr is used.
func New(api API, st *store.Store, stat *status.Store, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		api:    api,
		store:  st,
		status: stat,
		logger: logger,
	}
}

// Cursor returns the current cursor, or nil when a full resync is pending.
func (s *Syncer) Cursor() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return nil
	}
	c := *s.cursor
	return &c
}

// ResetCursor clears the cursor so the next pull fetches everything. Used
// on logout and account switch.
func (s *Syncer) ResetCursor() {
	s.mu.Lock()
	s.cursor = nil
	s.mu.Unlock()
}

// advanceCursor moves the cursor forward monotonically.
func (s *Syncer) advanceCursor(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil || ts > *s.cursor {
		s.cursor = &ts
	}
}

// PullResult counts the records a pull delivered.
type PullResult struct {
	Lists int
	Tasks int
}

// PullFromServer fetches deltas since the cursor, replaces lists wholesale,
// merges tasks against the local set (dirty local records win), and
// advances the cursor. On failure the cursor is left unchanged so the next
// pull retries from the same point.
func (s *Syncer) PullFromServer(ctx context.Context) (PullResult, error) {
	s.status.SetPull(status.PhaseRunning, "")

	resp, err := s.api.Pull(ctx, PullRequest{SinceTS: s.Cursor()})
	if err != nil {
		s.logger.Printf("WARNING: pull failed: %v", err)
		s.status.SetPull(status.PhaseError, err.Error())
		return PullResult{}, err
	}

	lists := make([]task.List, 0, len(resp.Lists))
	for _, w := range resp.Lists {
		lists = append(lists, listFromWire(w))
	}
	tasks := make([]task.Task, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		tasks = append(tasks, taskFromWire(w))
	}

	s.store.SetAllLists(lists)
	s.store.MergeRemote(tasks)
	s.advanceCursor(resp.CursorTS)
	s.store.Persist()
	s.status.SetQueueDepth(s.store.DirtyCount())
	s.status.SetPull(status.PhaseIdle, "")

	s.logger.Printf("Pulled %d lists, %d tasks (cursor=%d)", len(lists), len(tasks), resp.CursorTS)
	return PullResult{Lists: len(lists), Tasks: len(tasks)}, nil
}

// PushResult counts the outcome of one push cycle.
type PushResult struct {
	Pushed   int
	Created  int
	Rejected int
}

// submittedOp pairs a change with the snapshot of the task it was built
// from, for applied-entry correlation and in-flight-edit detection.
type submittedOp struct {
	change   Change
	snapshot task.Task
}

// PushPending flushes every dirty record to the server as one batched
// request.
//
// Dirty records that are neither local nor carry a server-issued id are
// legacy seed data that never existed upstream; they are dropped outright
// rather than pushed. Each remaining record becomes exactly one change op
// (create_task for local records, update_task otherwise), so a batch never
// holds two ops for the same task id.
//
// Rejections resolve independently: 404 removes the record (it no longer
// exists upstream), 403 on an update discards the local edit (the next
// pull restores canonical state) and surfaces the error, anything else is
// surfaced and left dirty for retry. A transport error aborts the whole
// batch with the dirty queue intact.
func (s *Syncer) PushPending(ctx context.Context) (PushResult, error) {
	dirty := s.store.DirtyTasks()
	if len(dirty) == 0 {
		return PushResult{}, nil
	}

	s.status.SetPush(status.PhaseRunning, "")

	var (
		ops         []submittedOp
		createIndex int
		updateIndex int
		dropped     int
	)
	for _, t := range dirty {
		if !t.Local && !task.IsServerID(t.ID) {
			// Pre-protocol cruft that never reached the server.
			s.store.Remove(t.ID)
			dropped++
			continue
		}
		if t.Local {
			ops = append(ops, submittedOp{change: createChange(createIndex, t), snapshot: t})
			createIndex++
		} else {
			ops = append(ops, submittedOp{change: updateChange(updateIndex, t), snapshot: t})
			updateIndex++
		}
	}
	if dropped > 0 {
		s.logger.Printf("Dropped %d legacy dirty records with non-server ids", dropped)
	}
	if len(ops) == 0 {
		s.store.Persist()
		s.status.SetQueueDepth(s.store.DirtyCount())
		s.status.SetPush(status.PhaseIdle, "")
		return PushResult{}, nil
	}

	changes := make([]Change, len(ops))
	for i := range ops {
		changes[i] = ops[i].change
	}

	resp, err := s.api.Push(ctx, PushRequest{Changes: changes})
	if err != nil {
		// Whole batch aborted; dirty queue stays as it was for retry.
		s.logger.Printf("WARNING: push failed: %v", err)
		s.status.SetPush(status.PhaseError, err.Error())
		return PushResult{}, err
	}

	rejectedByOp := make(map[string]Rejected, len(resp.Rejected))
	for _, r := range resp.Rejected {
		rejectedByOp[r.OpID] = r
	}

	var (
		result   PushResult
		firstErr string
	)
	appliedIndex := 0
	for _, op := range ops {
		rej, wasRejected := rejectedByOp[op.change.OpID()]
		if !wasRejected {
			if appliedIndex >= len(resp.Applied) {
				s.logger.Printf("WARNING: server omitted applied entry for op %s", op.change.OpID())
				continue
			}
			remote := taskFromWire(resp.Applied[appliedIndex])
			appliedIndex++
			sent := op.snapshot
			s.store.ReplaceWithRemote(op.snapshot.ID, remote, &sent)
			result.Pushed++
			if op.change.Kind() == KindCreateTask {
				result.Created++
			}
			continue
		}

		result.Rejected++
		switch {
		case rej.Status == 404:
			// The task no longer exists upstream.
			s.store.Remove(op.snapshot.ID)
		case rej.Status == 403 && op.change.Kind() == KindUpdateTask:
			// Edit not permitted; discard it and let the next pull
			// restore canonical state.
			s.store.ClearDirty(op.snapshot.ID)
			if firstErr == "" {
				firstErr = fmt.Sprintf("%s: %d %s", op.change.OpID(), rej.Status, rej.Error)
			}
		default:
			// Left dirty; retried on the next push.
			if firstErr == "" {
				firstErr = fmt.Sprintf("%s: %d %s", op.change.OpID(), rej.Status, rej.Error)
			}
		}
	}

	s.advanceCursor(resp.CursorTS)
	s.store.Persist()

	depth := s.store.DirtyCount()
	s.status.SetQueueDepth(depth)
	if result.Pushed > 0 || result.Rejected > 0 || depth == 0 {
		s.status.MarkReplay(task.NowMS())
	}

	if firstErr != "" {
		s.status.SetPush(status.PhaseError, firstErr)
		return result, errors.New(firstErr)
	}
	s.status.SetPush(status.PhaseIdle, "")
	s.logger.Printf("Pushed %d ops (%d created, %d rejected)", result.Pushed, result.Created, result.Rejected)
	return result, nil
}

// Sync runs one pull-then-push cycle. The pull error does not stop the
// push; dirty records still deserve a flush attempt, and each direction
// reports into the status store independently.
func (s *Syncer) Sync(ctx context.Context) error {
	_, pullErr := s.PullFromServer(ctx)
	_, pushErr := s.PushPending(ctx)
	if pullErr != nil {
		return pullErr
	}
	return pushErr
}
