package service

import (
	"go.uber.org/zap"

	"anwesha-auth/internal/identity"
	"anwesha-auth/internal/navigation"
	"anwesha-auth/internal/notify"
	"anwesha-auth/internal/repository"
)

// SessionDeps son las dependencias compartidas por todas las sesiones de cliente.
type SessionDeps struct {
	Logger *zap.Logger
	// NewProvider crea el estado de identidad de una sesion (normalmente Directory.NewClient).
	NewProvider func() identity.Provider
	Users       repository.UserDocumentRepository
	// Storage devuelve el almacenamiento de cliente de la sesion; nil usa memoria.
	Storage   func(sessionID string) ClientStorage
	InboxSize int
	Options   SessionOptions
}

// NewSessionFactory arma cada sesion con su proveedor, storage, bandeja de avisos y barra.
func NewSessionFactory(deps SessionDeps) SessionFactory {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(sessionID string) (*Session, error) {
		var storage ClientStorage
		if deps.Storage != nil {
			storage = deps.Storage(sessionID)
		}
		if storage == nil {
			storage = NewMemoryClientStorage()
		}
		inbox := notify.NewInbox(deps.InboxSize)
		sink := notify.Multi(notify.NewLogSink(logger.With(zap.String("sid", sessionID))), inbox)
		store := NewSessionStore(
			logger.With(zap.String("sid", sessionID)),
			deps.NewProvider(),
			deps.Users,
			storage,
			sink,
			deps.Options,
		)
		return &Session{
			ID:    sessionID,
			Store: store,
			Inbox: inbox,
			Nav:   navigation.NewShell(store, sink),
		}, nil
	}
}
