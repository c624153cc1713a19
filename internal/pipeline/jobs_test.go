package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob(Document{FileName: "a.txt", ContentType: "text/plain", Data: []byte("hello world")})
	if job.ID == "" {
		t.Fatal("expected job id")
	}
	snap := job.Snapshot()
	if snap.Status != StatusQueued {
		t.Errorf("expected queued, got %q", snap.Status)
	}
	if snap.ContentHash != ContentHashHex([]byte("hello world")) {
		t.Errorf("unexpected content hash %q", snap.ContentHash)
	}
	if snap.Errors == nil || len(snap.Errors) != 0 {
		t.Errorf("expected empty non-nil errors, got %#v", snap.Errors)
	}
	if string(job.Document().Data) != "hello world" {
		t.Error("document bytes not kept")
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := NewJob(Document{FileName: "a.txt"})
	for _, s := range []JobStatus{StatusExtracted, StatusSplit, StatusPolished, StatusEmbedded} {
		before := job.Snapshot().UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(s)
		snap := job.Snapshot()
		if snap.Status != s {
			t.Errorf("expected status %q, got %q", s, snap.Status)
		}
		if !snap.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", s)
		}
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusPersisted, StatusFailed, StatusIncomplete} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
}

func TestJob_AttemptsAndFinish(t *testing.T) {
	job := NewJob(Document{FileName: "a.txt", Data: []byte("x")})
	if n := job.StartAttempt(); n != 1 {
		t.Errorf("expected attempt 1, got %d", n)
	}
	job.SetStatus(StatusFailed)
	job.AddError("embedding: status 503")
	if n := job.StartAttempt(); n != 2 {
		t.Errorf("expected attempt 2, got %d", n)
	}
	if job.Status() != StatusQueued {
		t.Errorf("new attempt should reset to queued, got %q", job.Status())
	}

	job.Finish(&Result{FileName: "a.txt", Parents: 1, Children: 2}, StatusPersisted)
	snap := job.Snapshot()
	if snap.Attempts != 2 || snap.Status != StatusPersisted {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Result == nil || snap.Result.Children != 2 {
		t.Errorf("expected result in snapshot, got %+v", snap.Result)
	}
	if len(snap.Errors) != 1 || snap.Errors[0] != "embedding: status 503" {
		t.Errorf("unexpected errors %v", snap.Errors)
	}
	if job.Document().Data != nil {
		t.Error("document bytes should be released after Finish")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob(Document{FileName: "a.txt"})
	store.Put(job)

	if got := store.Get(job.ID); got != job {
		t.Fatal("expected to get job back")
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := NewJob(Document{FileName: "old.txt"})
	expired.Finish(nil, StatusPersisted)
	running := NewJob(Document{FileName: "running.txt"})
	running.SetStatus(StatusEmbedded)
	store.Put(expired)
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := NewJob(Document{FileName: "new.txt"})
	fresh.Finish(nil, StatusFailed)
	store.Put(fresh)

	store.Cleanup()

	if store.Get(expired.ID) != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get(running.ID) == nil {
		t.Error("in-flight job must survive cleanup")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs left, got %d", store.Len())
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt, lo := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		if d < lo || d >= lo+lo/2 {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v)", attempt, d, lo, lo+lo/2)
		}
	}
	if d := Backoff(20); d < 30*time.Second || d >= 45*time.Second {
		t.Errorf("Backoff(20) = %v, want capped near 30s", d)
	}
}
