package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UsersCollection es la coleccion donde viven los perfiles.
const UsersCollection = "users"

// Status describe el avance del registro de una cuenta.
type Status string

const (
	StatusUnset      Status = ""
	StatusPending    Status = "1"
	StatusSuccessful Status = "successful"
)

var (
	ErrStatusRegression    = errors.New("status cannot regress")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrAnweshaIDReassigned = errors.New("anwesha id already assigned")
	ErrUIDImmutable        = errors.New("uid cannot change")
	ErrInvalidRecord       = errors.New("invalid user record")
)

func (s Status) rank() int {
	switch s {
	case StatusUnset:
		return 0
	case StatusPending:
		return 1
	case StatusSuccessful:
		return 2
	default:
		return -1
	}
}

// UserRecord es el documento de perfil de una cuenta.
// Los campos desconocidos (datos extra del formulario de registro) se conservan en Extra.
type UserRecord struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email"`
	EmailVerified bool           `json:"emailVerified"`
	Status        Status         `json:"status"`
	AnweshaID     *string        `json:"anweshaId"`
	CreatedAt     int64          `json:"createdAt,omitempty"`
	Personal      map[string]any `json:"personal"`
	College       map[string]any `json:"college"`
	Events        []any          `json:"events"`
	QREnabled     bool           `json:"qrEnabled"`
	QRTokenID     *string        `json:"qrTokenId"`
	Extra         map[string]any `json:"-"`
}

type userRecordAlias UserRecord

var knownUserFields = map[string]struct{}{
	"uid": {}, "email": {}, "emailVerified": {}, "status": {}, "anweshaId": {},
	"createdAt": {}, "personal": {}, "college": {}, "events": {}, "qrEnabled": {}, "qrTokenId": {},
}

// NewPendingUser construye el documento inicial de una cuenta recien creada.
func NewPendingUser(uid, email string, emailVerified bool, createdAt int64) UserRecord {
	return UserRecord{
		UID:           uid,
		Email:         email,
		EmailVerified: emailVerified,
		Status:        StatusPending,
		CreatedAt:     createdAt,
		Personal:      map[string]any{},
		College:       map[string]any{},
		Events:        []any{},
	}
}

// IsComplete indica si la cuenta termino el registro.
func (u UserRecord) IsComplete() bool {
	return u.Status == StatusSuccessful
}

// FullName devuelve personal.fullName si existe.
func (u UserRecord) FullName() string {
	if u.Personal == nil {
		return ""
	}
	name, _ := u.Personal["fullName"].(string)
	return name
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(userRecordAlias(u))
	if err != nil {
		return nil, err
	}
	if len(u.Extra) == 0 {
		return base, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, err
	}
	for k, v := range u.Extra {
		if _, known := knownUserFields[k]; known {
			continue
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}

func (u *UserRecord) UnmarshalJSON(data []byte) error {
	var alias userRecordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownUserFields {
		delete(raw, k)
	}
	*u = UserRecord(alias)
	if len(raw) > 0 {
		u.Extra = raw
	}
	return nil
}

// Clone devuelve una copia profunda del registro.
func (u UserRecord) Clone() UserRecord {
	doc, err := u.Document()
	if err != nil {
		return u
	}
	out, err := UserRecordFromDocument(doc)
	if err != nil {
		return u
	}
	return out
}

// Document serializa el registro al formato generico del document store.
func (u UserRecord) Document() (map[string]any, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UserRecordFromDocument reconstruye un registro desde un documento generico.
// Un campo conocido con el tipo equivocado devuelve ErrInvalidRecord.
func UserRecordFromDocument(doc map[string]any) (UserRecord, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return UserRecord{}, err
	}
	var u UserRecord
	if err := json.Unmarshal(data, &u); err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return u, nil
}

// Merge aplica una actualizacion parcial sobre el registro sin tocar los campos hermanos.
// Sirve tambien para validar una actualizacion antes de escribirla.
func (u UserRecord) Merge(fields Fields) (UserRecord, error) {
	doc, err := u.Document()
	if err != nil {
		return UserRecord{}, err
	}
	merged, err := ApplyFields(doc, fields)
	if err != nil {
		return UserRecord{}, err
	}
	return UserRecordFromDocument(merged)
}

// CheckFields valida que la actualizacion respete las invariantes del registro:
// el status nunca retrocede, el anweshaId se asigna una sola vez y el uid no cambia.
func (u UserRecord) CheckFields(fields Fields) error {
	fields, err := fields.Normalize()
	if err != nil {
		return err
	}
	if raw, ok := fields["uid"]; ok {
		if uid, _ := raw.(string); u.UID != "" && uid != u.UID {
			return ErrUIDImmutable
		}
	}
	if raw, ok := fields["status"]; ok {
		next := Status(fmt.Sprint(raw))
		if raw == nil {
			next = StatusUnset
		}
		if next.rank() < 0 {
			return ErrInvalidStatus
		}
		if next.rank() < u.Status.rank() {
			return ErrStatusRegression
		}
	}
	if raw, ok := fields["anweshaId"]; ok && u.AnweshaID != nil {
		next, _ := raw.(string)
		if next != *u.AnweshaID {
			return ErrAnweshaIDReassigned
		}
	}
	return nil
}
