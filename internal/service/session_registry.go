package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"anwesha-auth/internal/navigation"
	"anwesha-auth/internal/notify"
)

var ErrUnknownSession = errors.New("unknown session")

// Session agrupa el estado en memoria de una sesion de cliente.
type Session struct {
	ID    string
	Store *SessionStore
	Inbox *notify.Inbox
	Nav   *navigation.Shell
}

// SessionFactory arma los componentes de una sesion nueva (proveedor, storage, avisos).
type SessionFactory func(sessionID string) (*Session, error)

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// SessionRegistry mantiene un SessionStore por sesion de cliente y descarta las inactivas.
type SessionRegistry struct {
	logger  *zap.Logger
	factory SessionFactory
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
	closed  bool
}

func NewSessionRegistry(logger *zap.Logger, factory SessionFactory, idleTTL time.Duration) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &SessionRegistry{
		logger:  logger,
		factory: factory,
		idleTTL: idleTTL,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]*sessionEntry),
	}
}

// Get devuelve la sesion sid, creandola e inicializandola si no esta en memoria.
// La sesion recreada se restaura desde el ClientStorage.
func (r *SessionRegistry) Get(ctx context.Context, sid string) (*Session, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil, ErrUnknownSession
	}
	r.Sweep()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionDisposed
	}
	if e, ok := r.entries[sid]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.session, nil
	}
	r.mu.Unlock()

	session, err := r.factory(sid)
	if err != nil {
		return nil, err
	}
	if err := session.Store.Init(ctx); err != nil {
		session.Store.Dispose()
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.entries[sid]; ok {
		// otra request creo la misma sesion primero
		e.lastUsed = r.now()
		r.mu.Unlock()
		session.Store.Dispose()
		return e.session, nil
	}
	if r.closed {
		r.mu.Unlock()
		session.Store.Dispose()
		return nil, ErrSessionDisposed
	}
	r.entries[sid] = &sessionEntry{session: session, lastUsed: r.now()}
	r.mu.Unlock()

	r.logger.Debug("session loaded", zap.String("sid", sid))
	return session, nil
}

// Drop descarta la sesion de memoria. No toca su ClientStorage.
func (r *SessionRegistry) Drop(sid string) {
	r.mu.Lock()
	e, ok := r.entries[sid]
	delete(r.entries, sid)
	r.mu.Unlock()
	if ok {
		e.session.Store.Dispose()
	}
}

// Sweep descarta las sesiones sin uso durante mas de idleTTL.
func (r *SessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)
	var expired []*Session

	r.mu.Lock()
	for sid, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.entries, sid)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Store.Dispose()
		r.logger.Debug("idle session evicted", zap.String("sid", s.ID))
	}
	return len(expired)
}

// Run barre sesiones inactivas periodicamente hasta que ctx se cancela.
func (r *SessionRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close libera todas las sesiones. Get falla despues de Close.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Store.Dispose()
	}
}
