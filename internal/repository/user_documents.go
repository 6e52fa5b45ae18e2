package repository

import (
	"context"

	"anwesha-auth/internal/domain"
)

// UserDocumentRepository define el acceso tipado a los perfiles de la coleccion "users".
type UserDocumentRepository interface {
	Get(ctx context.Context, uid string) (domain.UserRecord, error)
	Set(ctx context.Context, user domain.UserRecord) error
	Update(ctx context.Context, uid string, fields domain.Fields) (domain.UserRecord, error)
	AnweshaIDTaken(ctx context.Context, anweshaID string) (bool, error)
}

// UserDocuments implementa UserDocumentRepository sobre cualquier DocumentStore.
type UserDocuments struct {
	store DocumentStore
}

func NewUserDocuments(store DocumentStore) *UserDocuments {
	return &UserDocuments{store: store}
}

func (r *UserDocuments) Get(ctx context.Context, uid string) (domain.UserRecord, error) {
	doc, err := r.store.Get(ctx, domain.UsersCollection, uid)
	if err != nil {
		return domain.UserRecord{}, err
	}
	return domain.UserRecordFromDocument(doc)
}

func (r *UserDocuments) Set(ctx context.Context, user domain.UserRecord) error {
	doc, err := user.Document()
	if err != nil {
		return err
	}
	return r.store.Set(ctx, domain.UsersCollection, user.UID, doc)
}

func (r *UserDocuments) Update(ctx context.Context, uid string, fields domain.Fields) (domain.UserRecord, error) {
	var updated domain.UserRecord
	_, err := r.store.Update(ctx, domain.UsersCollection, uid, fields, func(doc map[string]any) error {
		var err error
		updated, err = domain.UserRecordFromDocument(doc)
		return err
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	return updated, nil
}

func (r *UserDocuments) AnweshaIDTaken(ctx context.Context, anweshaID string) (bool, error) {
	return r.store.FieldExists(ctx, domain.UsersCollection, "anweshaId", anweshaID)
}
