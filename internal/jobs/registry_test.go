package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/forPelevin/clipforge/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestCreateRequiresSource(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("", "   ", DefaultConfig())
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Create with no source = %v, want ErrInvalidInput", err)
	}
	if len(r.List()) != 0 {
		t.Error("rejected submission left a record behind")
	}
}

func TestCreateRejectsBadConfig(t *testing.T) {
	r := newTestRegistry(t)
	cfg := DefaultConfig()
	cfg.NumClips = 0
	_, err := r.Create("https://example.com/v", "", cfg)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Create with bad config = %v, want ErrConfig", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.Create("https://example.com/v", "", DefaultConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" {
		t.Fatal("Create returned empty id")
	}
	if job.Status != StatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != job.ID || got.Status != StatusPending {
		t.Errorf("Get = %+v, want the created job", got)
	}
}

func TestGetUnknown(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestListCreationOrder(t *testing.T) {
	r := newTestRegistry(t)
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := r.Create("https://example.com/v", "", DefaultConfig())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, job.ID)
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d jobs, want 3", len(list))
	}
	for i, s := range list {
		if s.ID != ids[i] {
			t.Errorf("List[%d].ID = %s, want %s", i, s.ID, ids[i])
		}
	}
}

func TestDeleteIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())
	if !r.Delete(job.ID) {
		t.Error("first Delete = false, want true")
	}
	if r.Delete(job.ID) {
		t.Error("second Delete = true, want false")
	}
	if _, err := r.Get(job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteCancelsWorker(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	r.RegisterCancel(job.ID, cancel)
	r.Delete(job.ID)

	select {
	case <-ctx.Done():
	default:
		t.Error("deleting an active job did not cancel its context")
	}
}

func TestRegisterCancelAfterDelete(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())
	r.Delete(job.ID)

	ctx, cancel := context.WithCancel(context.Background())
	r.RegisterCancel(job.ID, cancel)
	select {
	case <-ctx.Done():
	default:
		t.Error("cancel for an already-deleted job was not invoked")
	}
}

func TestStatusTransitions(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())

	forward := []Status{
		StatusDownloading, StatusTranscribing, StatusSelecting, StatusRendering,
	}
	for _, st := range forward {
		if err := r.SetStatus(job.ID, st, "working"); err != nil {
			t.Fatalf("SetStatus(%s): %v", st, err)
		}
	}
	if err := r.SetStatus(job.ID, StatusDownloading, "again"); !errors.Is(err, ErrTransition) {
		t.Errorf("backward transition = %v, want ErrTransition", err)
	}

	if err := r.Complete(job.ID, []types.Clip{{Label: "clip_01", File: "clip_01.mp4"}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ := r.Get(job.ID)
	if got.Status != StatusCompleted || got.CompletedAt.IsZero() {
		t.Errorf("completed job = %+v", got)
	}

	// Terminal records never change again.
	if err := r.Fail(job.ID, "late failure"); !errors.Is(err, ErrTransition) {
		t.Errorf("Fail after Complete = %v, want ErrTransition", err)
	}
	if err := r.SetProgress(job.ID, "more"); !errors.Is(err, ErrTransition) {
		t.Errorf("SetProgress after Complete = %v, want ErrTransition", err)
	}
}

func TestRecordClipFailures(t *testing.T) {
	r := newTestRegistry(t)
	job, err := r.Create("https://example.com/v", "", DefaultConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.SetStatus(job.ID, StatusRendering, "Rendering clip 1/2..."); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	first := types.ClipFailure{Label: "clip_01", StartSec: 5, EndSec: 25, Reason: "render: exit status 1"}
	second := types.ClipFailure{Label: "clip_02", StartSec: 40, EndSec: 60, Reason: "background music mix: no audio stream"}
	if err := r.RecordClipFailures(job.ID, []types.ClipFailure{first}); err != nil {
		t.Fatalf("RecordClipFailures: %v", err)
	}
	// A later stage appends, never replaces.
	if err := r.RecordClipFailures(job.ID, []types.ClipFailure{second}); err != nil {
		t.Fatalf("RecordClipFailures append: %v", err)
	}

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.ClipFailures) != 2 {
		t.Fatalf("got %d failures, want 2", len(got.ClipFailures))
	}
	if got.ClipFailures[0] != first || got.ClipFailures[1] != second {
		t.Errorf("failures = %+v", got.ClipFailures)
	}

	// Terminal jobs no longer accept failure records.
	if err := r.Complete(job.ID, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := r.RecordClipFailures(job.ID, []types.ClipFailure{first}); !errors.Is(err, ErrTransition) {
		t.Errorf("RecordClipFailures on terminal job = %v, want ErrTransition", err)
	}

	// Recording nothing is a no-op even for unknown jobs.
	if err := r.RecordClipFailures("nope", nil); err != nil {
		t.Errorf("RecordClipFailures with no failures = %v", err)
	}
}

func TestFailFromAnyStage(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())
	if err := r.SetStatus(job.ID, StatusRendering, "Rendering clip 1/3..."); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := r.Fail(job.ID, "ffmpeg exited 1"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := r.Get(job.ID)
	if got.Status != StatusFailed || got.Message != "ffmpeg exited 1" {
		t.Errorf("failed job = %+v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := newTestRegistry(t)
	cfg := DefaultConfig()
	cfg.Keywords = []string{"secret"}
	job, _ := r.Create("https://example.com/v", "", cfg)

	got, _ := r.Get(job.ID)
	got.Config.Keywords[0] = "mutated"

	again, _ := r.Get(job.ID)
	if again.Config.Keywords[0] != "secret" {
		t.Error("snapshot shares keyword slice with the registry record")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	r := newTestRegistry(t)
	job, _ := r.Create("https://example.com/v", "", DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.SetProgress(job.ID, "Rendering clip 1/5...")
			_, _ = r.Get(job.ID)
			r.List()
		}()
	}
	wg.Wait()

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get after concurrent updates: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

type memStore struct {
	mu   sync.Mutex
	rows map[string]Job
	seq  []string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Job)}
}

func (m *memStore) SaveJob(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[job.ID]; !ok {
		m.seq = append(m.seq, job.ID)
	}
	m.rows[job.ID] = job
	return nil
}

func (m *memStore) DeleteJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memStore) LoadJobs() ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, id := range m.seq {
		if j, ok := m.rows[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func TestRestoreMarksInFlightFailed(t *testing.T) {
	store := newMemStore()
	r, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	done, _ := r.Create("https://example.com/a", "", DefaultConfig())
	_ = r.Complete(done.ID, nil)
	mid, _ := r.Create("https://example.com/b", "", DefaultConfig())
	_ = r.SetStatus(mid.ID, StatusRendering, "Rendering clip 2/5...")

	// Simulate a restart against the same store.
	r2, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry after restart: %v", err)
	}
	gotDone, err := r2.Get(done.ID)
	if err != nil {
		t.Fatalf("Get completed job after restart: %v", err)
	}
	if gotDone.Status != StatusCompleted {
		t.Errorf("completed job restored as %s", gotDone.Status)
	}
	gotMid, err := r2.Get(mid.ID)
	if err != nil {
		t.Fatalf("Get in-flight job after restart: %v", err)
	}
	if gotMid.Status != StatusFailed {
		t.Errorf("in-flight job restored as %s, want failed", gotMid.Status)
	}
	if gotMid.Message != "interrupted by restart" {
		t.Errorf("message = %q", gotMid.Message)
	}
}
