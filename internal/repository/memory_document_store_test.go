package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"anwesha-auth/internal/domain"
)

func TestMemoryDocumentStore_GetSetUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	if _, err := store.Get(ctx, "users", "u1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, "users", "u1", domain.Fields{"a": 1}, nil); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound on update, got %v", err)
	}

	doc := map[string]any{"personal": map[string]any{"fullName": "Ada", "city": "Kolkata"}}
	if err := store.Set(ctx, "users", "u1", doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc["personal"].(map[string]any)["fullName"] = "changed"

	updated, err := store.Update(ctx, "users", "u1", domain.Fields{"personal.phone": "123"}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	personal := updated["personal"].(map[string]any)
	if personal["fullName"] != "Ada" || personal["city"] != "Kolkata" || personal["phone"] != "123" {
		t.Fatalf("unexpected personal %+v", personal)
	}

	personal["fullName"] = "mutated"
	got, _ := store.Get(ctx, "users", "u1")
	if got["personal"].(map[string]any)["fullName"] != "Ada" {
		t.Fatalf("store returned shared document")
	}

	if err := store.Delete(ctx, "users", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "users", "u1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected deleted document, got %v", err)
	}
}

func TestMemoryDocumentStore_UniqueField(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore().WithUniqueField("users", "anweshaId")

	_ = store.Set(ctx, "users", "u1", map[string]any{"anweshaId": "ANW-ADA-000001"})
	_ = store.Set(ctx, "users", "u2", map[string]any{"anweshaId": nil})
	_ = store.Set(ctx, "users", "u3", map[string]any{"anweshaId": nil})

	if err := store.Set(ctx, "users", "u1", map[string]any{"anweshaId": "ANW-ADA-000001", "x": 1}); err != nil {
		t.Fatalf("rewriting own value must succeed: %v", err)
	}
	if _, err := store.Update(ctx, "users", "u2", domain.Fields{"anweshaId": "ANW-ADA-000001"}, nil); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	got, _ := store.Get(ctx, "users", "u2")
	if got["anweshaId"] != nil {
		t.Fatalf("failed update must not be applied, got %+v", got)
	}

	exists, err := store.FieldExists(ctx, "users", "anweshaId", "ANW-ADA-000001")
	if err != nil || !exists {
		t.Fatalf("expected field to exist, got %v %v", exists, err)
	}
	exists, _ = store.FieldExists(ctx, "users", "anweshaId", "ANW-ADA-999999")
	if exists {
		t.Fatalf("expected missing value")
	}
}

func TestUserDocuments_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewUserDocuments(NewMemoryDocumentStore())

	user := domain.NewPendingUser("u1", "a@x.com", false, 10)
	user.Extra = map[string]any{"tshirt": "M"}
	if err := repo.Set(ctx, user); err != nil {
		t.Fatalf("set: %v", err)
	}

	code := "ANW-ADA-123456"
	updated, err := repo.Update(ctx, "u1", domain.Fields{"status": domain.StatusSuccessful, "anweshaId": code, "personal.fullName": "Ada"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.IsComplete() || updated.AnweshaID == nil || *updated.AnweshaID != code || updated.FullName() != "Ada" {
		t.Fatalf("unexpected record %+v", updated)
	}
	if updated.Extra["tshirt"] != "M" || updated.Email != "a@x.com" {
		t.Fatalf("update lost sibling fields %+v", updated)
	}

	taken, err := repo.AnweshaIDTaken(ctx, code)
	if err != nil || !taken {
		t.Fatalf("expected code taken, got %v %v", taken, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestMemoryCredentialRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCredentialRepository()
	cred := domain.Credential{ID: "c1", Email: "a@x.com", PasswordHash: "h", CreatedAt: time.Now()}

	if err := repo.Create(ctx, cred); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, domain.Credential{ID: "c2", Email: "a@x.com"}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	expires := time.Now().Add(time.Minute)
	if err := repo.UpdateOTP(ctx, "c1", "otp", expires); err != nil {
		t.Fatalf("update otp: %v", err)
	}
	if err := repo.VerifyEmail(ctx, "c1", time.Now()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := repo.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if !got.Verified() || got.OtpCodeHash != "" || got.OtpExpiresAt != nil {
		t.Fatalf("unexpected credential %+v", got)
	}

	_ = repo.Delete(ctx, "c1")
	if _, err := repo.GetByEmail(ctx, "a@x.com"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
	if err := repo.UpdateOTP(ctx, "c1", "otp", expires); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows on missing credential, got %v", err)
	}
}

func TestTranslatePgError(t *testing.T) {
	if translatePgError(nil) != nil {
		t.Fatalf("expected nil")
	}
	unique := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "documents_users_anwesha_id_key"}
	if err := translatePgError(unique); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	other := &pgconn.PgError{Code: "42P01"}
	if err := translatePgError(other); errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("unexpected duplicate key for %v", err)
	}
}

func TestUserDocuments_RejectsMistypedFieldWithoutWriting(t *testing.T) {
	ctx := context.Background()
	repo := NewUserDocuments(NewMemoryDocumentStore())
	if err := repo.Set(ctx, domain.NewPendingUser("u1", "a@x.com", false, 10)); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := repo.Update(ctx, "u1", domain.Fields{"qrEnabled": "yes"}); !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	got, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("record must stay readable after a rejected update: %v", err)
	}
	if got.QREnabled || got.Status != domain.StatusPending {
		t.Fatalf("rejected update was written: %+v", got)
	}

	updated, err := repo.Update(ctx, "u1", domain.Fields{"events": []any{map[string]any{"id": "hackathon"}}})
	if err != nil {
		t.Fatalf("free-form events must be accepted: %v", err)
	}
	if len(updated.Events) != 1 {
		t.Fatalf("unexpected events %+v", updated.Events)
	}
}

func TestUserDocuments_PendingDocumentShape(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	repo := NewUserDocuments(store)
	if err := repo.Set(ctx, domain.NewPendingUser("u1", "a@x.com", false, 10)); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, err := store.Get(ctx, domain.UsersCollection, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	personal, okP := doc["personal"].(map[string]any)
	college, okC := doc["college"].(map[string]any)
	events, okE := doc["events"].([]any)
	if !okP || !okC || !okE || len(personal) != 0 || len(college) != 0 || len(events) != 0 {
		t.Fatalf("expected empty personal, college and events, got %+v", doc)
	}
	if v, ok := doc["anweshaId"]; !ok || v != nil {
		t.Fatalf("expected explicit null anweshaId, got %+v", doc)
	}
}
