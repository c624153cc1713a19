package pipeline

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/dgallion1/docrag/internal/chunk"
	"github.com/dgallion1/docrag/internal/store/memory"
)

// hashEmbedder returns deterministic vectors derived from each text.
// errs is consumed one entry per call; a nil entry succeeds.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	errs  []error
	hook  func(ctx context.Context)
	short bool
}

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	var err error
	if len(e.errs) > 0 {
		err, e.errs = e.errs[0], e.errs[1:]
	}
	e.mu.Unlock()

	if e.hook != nil {
		e.hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	if e.short {
		texts = texts[:len(texts)-1]
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New32a()
		h.Write([]byte(t))
		sum := h.Sum32()
		out[i] = []float32{float32(sum&0xff) + 1, float32(sum>>8&0xff) + 1, float32(sum>>16&0xff) + 1}
	}
	return out, nil
}

func (e *hashEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// spyStore wraps the memory store and counts or fails writes.
type spyStore struct {
	*memory.Store

	mu           sync.Mutex
	parentCalls  int
	childCalls   int
	failChildren error
	onParents    func(ctx context.Context) error
}

func newSpyStore() *spyStore {
	return &spyStore{Store: memory.New()}
}

func (s *spyStore) UpsertParents(ctx context.Context, parents []chunk.Parent) error {
	s.mu.Lock()
	s.parentCalls++
	hook := s.onParents
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return s.Store.UpsertParents(ctx, parents)
}

func (s *spyStore) UpsertChildren(ctx context.Context, children []chunk.Child) error {
	s.mu.Lock()
	s.childCalls++
	fail := s.failChildren
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.UpsertChildren(ctx, children)
}

func (s *spyStore) calls() (parents, children int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parentCalls, s.childCalls
}

// statusLog collects tracked statuses.
type statusLog struct {
	mu   sync.Mutex
	seen []JobStatus
}

func (l *statusLog) track(s JobStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, s)
}

func (l *statusLog) statuses() []JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]JobStatus(nil), l.seen...)
}
