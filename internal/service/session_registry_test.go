package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"anwesha-auth/internal/notify"
	"anwesha-auth/internal/repository"
)

type registryHarness struct {
	mu       sync.Mutex
	created  []string
	storages map[string]ClientStorage
	users    repository.UserDocumentRepository
}

func newRegistryHarness() *registryHarness {
	return &registryHarness{storages: map[string]ClientStorage{}, users: newUsersRepo()}
}

func (h *registryHarness) factory(sid string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, sid)
	storage, ok := h.storages[sid]
	if !ok {
		storage = NewMemoryClientStorage()
		h.storages[sid] = storage
	}
	inbox := notify.NewInbox(10)
	store := NewSessionStore(zap.NewNop(), newFakeProvider(), h.users, storage, inbox, SessionOptions{})
	return &Session{ID: sid, Store: store, Inbox: inbox}, nil
}

func (h *registryHarness) createdCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.created)
}

func TestSessionRegistry_GetCreatesOnce(t *testing.T) {
	h := newRegistryHarness()
	reg := NewSessionRegistry(zap.NewNop(), h.factory, time.Minute)
	defer reg.Close()

	first, err := reg.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := reg.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same session")
	}
	if h.createdCount() != 1 || reg.Len() != 1 {
		t.Fatalf("expected one session, created=%d len=%d", h.createdCount(), reg.Len())
	}
	if _, err := reg.Get(context.Background(), " "); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestSessionRegistry_ConcurrentGetReturnsOneSession(t *testing.T) {
	h := newRegistryHarness()
	reg := NewSessionRegistry(zap.NewNop(), h.factory, time.Minute)
	defer reg.Close()

	var wg sync.WaitGroup
	results := make([]*Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Get(context.Background(), "s1")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		if s != results[0] {
			t.Fatalf("expected every caller to get the same session")
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("expected one registered session, got %d", reg.Len())
	}
}

func TestSessionRegistry_SweepEvictsIdleSessions(t *testing.T) {
	h := newRegistryHarness()
	reg := NewSessionRegistry(zap.NewNop(), h.factory, time.Minute)
	defer reg.Close()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	idle, err := reg.Get(context.Background(), "idle")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	now = now.Add(50 * time.Second)
	if _, err := reg.Get(context.Background(), "fresh"); err != nil {
		t.Fatalf("get: %v", err)
	}
	now = now.Add(20 * time.Second)

	if n := reg.Sweep(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected fresh session to remain, got %d", reg.Len())
	}
	if _, err := idle.Store.LoginUser(context.Background(), "a@x.com", "pw"); !errors.Is(err, ErrSessionDisposed) {
		t.Fatalf("expected evicted store to be disposed, got %v", err)
	}
}

func TestSessionRegistry_RecreatedSessionRestoresMarker(t *testing.T) {
	h := newRegistryHarness()
	reg := NewSessionRegistry(zap.NewNop(), h.factory, time.Minute)
	defer reg.Close()

	s, err := reg.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := s.Store.storage.Set(context.Background(), sessionMarkerKey, "ghost"); err != nil {
		t.Fatalf("set marker: %v", err)
	}
	reg.Drop("s1")
	if reg.Len() != 0 {
		t.Fatalf("expected dropped session to be gone")
	}

	if _, err := reg.Get(context.Background(), "s1"); err != nil {
		t.Fatalf("get after drop: %v", err)
	}
	if h.createdCount() != 2 {
		t.Fatalf("expected session to be rebuilt, created=%d", h.createdCount())
	}
	// el proveedor nuevo no conoce "ghost": la marca se limpia al restaurar
	if _, ok, _ := h.storages["s1"].Get(context.Background(), sessionMarkerKey); ok {
		t.Fatalf("expected stale marker to be cleared on restore")
	}
}

func TestSessionRegistry_CloseRejectsNewSessions(t *testing.T) {
	h := newRegistryHarness()
	reg := NewSessionRegistry(zap.NewNop(), h.factory, time.Minute)
	if _, err := reg.Get(context.Background(), "s1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	reg.Close()
	if reg.Len() != 0 {
		t.Fatalf("expected no sessions after close")
	}
	if _, err := reg.Get(context.Background(), "s2"); !errors.Is(err, ErrSessionDisposed) {
		t.Fatalf("expected ErrSessionDisposed, got %v", err)
	}
}

func TestSessionRegistry_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewSessionRegistry(zap.NewNop(), func(string) (*Session, error) { return nil, boom }, time.Minute)
	defer reg.Close()
	if _, err := reg.Get(context.Background(), "s1"); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}
