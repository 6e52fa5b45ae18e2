package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/identity"
	"anwesha-auth/internal/notify"
	"anwesha-auth/internal/repository"
)

// sessionMarkerKey es la clave del ClientStorage donde se recuerda el uid de la sesion.
const sessionMarkerKey = "uid"

var (
	ErrInvalidCredentials     = identity.ErrInvalidCredentials
	ErrEmailAlreadyInUse      = identity.ErrEmailAlreadyInUse
	ErrProfileMissing         = errors.New("user record not found, contact support")
	ErrRegistrationIncomplete = errors.New("please complete registration")
	ErrAnweshaIDExhausted     = errors.New("could not allocate a unique anwesha id")
	ErrSessionDisposed        = errors.New("session disposed")
)

// SessionOptions ajusta timeouts y la generacion de codigos del SessionStore.
type SessionOptions struct {
	RemoteTimeout        time.Duration
	AnweshaIDMaxAttempts int
	NewAnweshaID         func() (string, error)
	Now                  func() time.Time
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = 5 * time.Second
	}
	if o.AnweshaIDMaxAttempts <= 0 {
		o.AnweshaIDMaxAttempts = 5
	}
	if o.NewAnweshaID == nil {
		o.NewAnweshaID = NewAnweshaID
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// SessionState es la vista que consumen las pantallas.
type SessionState struct {
	CurrentUser *domain.UserRecord `json:"currentUser"`
	Loading     bool               `json:"loading"`
}

type authEvent struct {
	state identity.AuthState
	seq   uint64
}

// SessionStore es el dueño del usuario actual de una sesion de cliente.
//
// Coordina el proveedor de identidad con el document store. Las mutaciones se
// serializan con opMu; los eventos del proveedor se procesan en un goroutine propio
// que tambien toma opMu, asi nunca se intercalan estados parciales. Cada escritura
// lleva el numero de secuencia del momento en que empezo la operacion y solo se aplica
// si no es anterior a la ultima aplicada: un evento del proveedor nunca pisa el
// resultado de una llamada explicita que empezo despues.
type SessionStore struct {
	logger   *zap.Logger
	provider identity.Provider
	users    repository.UserDocumentRepository
	storage  ClientStorage
	sink     notify.Sink
	opts     SessionOptions

	opMu sync.Mutex

	mu         sync.Mutex
	current    *domain.UserRecord
	loading    bool
	seq        uint64
	appliedSeq uint64
	watchers   map[int]func(SessionState)
	nextWatch  int
	pending    *authEvent

	signal      chan struct{}
	ready       chan struct{}
	readyOnce   sync.Once
	done        chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()
	initOnce    sync.Once
	disposeOnce sync.Once
}

func NewSessionStore(
	logger *zap.Logger,
	provider identity.Provider,
	users repository.UserDocumentRepository,
	storage ClientStorage,
	sink notify.Sink,
	opts SessionOptions,
) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storage == nil {
		storage = NewMemoryClientStorage()
	}
	return &SessionStore{
		logger:   logger,
		provider: provider,
		users:    users,
		storage:  storage,
		sink:     sink,
		opts:     opts.withDefaults(),
		loading:  true,
		watchers: make(map[int]func(SessionState)),
		signal:   make(chan struct{}, 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Init se suscribe al stream de autenticacion y restaura la identidad recordada
// por el cliente. Solo tiene efecto la primera vez.
func (s *SessionStore) Init(ctx context.Context) error {
	var err error
	s.initOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
		s.unsubscribe = s.provider.Subscribe(s.onAuthState)
		err = s.restore(ctx)
	})
	return err
}

// Dispose libera la suscripcion y detiene el procesamiento de eventos.
func (s *SessionStore) Dispose() {
	s.disposeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.done)
		s.wg.Wait()
	})
}

func (s *SessionStore) restore(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	rctx, cancel := s.remote(ctx)
	uid, ok, err := s.storage.Get(rctx, sessionMarkerKey)
	cancel()
	if err != nil {
		return fmt.Errorf("read session marker: %w", err)
	}
	if !ok || uid == "" {
		return nil
	}

	rctx, cancel = s.remote(ctx)
	defer cancel()
	if err := s.provider.Resume(rctx, uid); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			s.logger.Info("stale session marker removed", zap.String("uid", uid))
			return s.storage.Remove(rctx, sessionMarkerKey)
		}
		return fmt.Errorf("resume session: %w", err)
	}
	return nil
}

// State devuelve una copia del estado actual.
func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CurrentUser devuelve una copia del usuario actual, o nil si la sesion es anonima.
func (s *SessionStore) CurrentUser() *domain.UserRecord {
	return s.State().CurrentUser
}

func (s *SessionStore) Loading() bool {
	return s.State().Loading
}

// WaitReady bloquea hasta que se procesa el primer evento de autenticacion.
func (s *SessionStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch registra fn para cada cambio de estado. Devuelve la funcion para darse de baja.
func (s *SessionStore) Watch(fn func(SessionState)) func() {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// onAuthState corre dentro del proveedor: solo deja el ultimo estado pendiente y avisa.
// Los estados son completos, asi que conservar el ultimo no pierde informacion.
func (s *SessionStore) onAuthState(state identity.AuthState) {
	s.mu.Lock()
	s.seq++
	s.pending = &authEvent{state: state, seq: s.seq}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *SessionStore) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			ev := s.pending
			s.pending = nil
			s.mu.Unlock()
			if ev != nil {
				s.handleAuthEvent(*ev)
			}
		}
	}
}

func (s *SessionStore) handleAuthEvent(ev authEvent) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	// llego un estado mas nuevo mientras esperaba el lock; ese es el que cuenta
	s.mu.Lock()
	superseded := s.pending != nil && s.pending.seq > ev.seq
	s.mu.Unlock()
	if superseded {
		return
	}
	defer s.finishLoading()

	if !ev.state.SignedIn() {
		s.apply(ev.seq, nil)
		return
	}

	ident := ev.state.Identity
	ctx, cancel := s.remote(context.Background())
	defer cancel()
	user, err := s.users.Get(ctx, ident.ID)
	switch {
	case err == nil:
		s.apply(ev.seq, &user)
	case errors.Is(err, repository.ErrDocumentNotFound):
		// registro parcial: la identidad existe pero el perfil nunca se creo
		fallback := domain.UserRecord{
			UID:           ident.ID,
			Email:         ident.Email,
			EmailVerified: ident.Verified,
			Status:        domain.StatusPending,
		}
		s.apply(ev.seq, &fallback)
	default:
		s.logger.Warn("load profile for auth state failed", zap.String("uid", ident.ID), zap.Error(err))
	}
}

// RegisterUser crea la cuenta y su perfil pendiente. Si el email ya existe intenta
// iniciar sesion con las mismas credenciales. Cualquier otro fallo se notifica y
// devuelve (nil, nil).
func (s *SessionStore) RegisterUser(ctx context.Context, emailAddr, password string) (*domain.UserRecord, error) {
	unlock, seq, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rctx, cancel := s.remote(ctx)
	ident, err := s.provider.CreateAccount(rctx, emailAddr, password)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrEmailAlreadyInUse) {
			s.logger.Info("register: email already in use, trying login", zap.String("email", emailAddr))
			return s.loginLocked(ctx, seq, emailAddr, password)
		}
		s.logger.Warn("register failed", zap.String("email", emailAddr), zap.Error(err))
		notify.Error(ctx, s.sink, err.Error())
		return nil, nil
	}

	record := domain.NewPendingUser(ident.ID, ident.Email, ident.Verified, s.opts.Now().UnixMilli())
	previous := s.CurrentUser()
	s.apply(seq, &record)

	rctx, cancel = s.remote(ctx)
	err = s.users.Set(rctx, record)
	cancel()
	if err != nil {
		s.logger.Warn("persist new profile failed, rolling back", zap.String("uid", ident.ID), zap.Error(err))
		s.apply(seq, previous)
		rctx, cancel = s.remote(ctx)
		if delErr := s.provider.DeleteAccount(rctx, ident.ID); delErr != nil {
			s.logger.Error("rollback account creation failed", zap.String("uid", ident.ID), zap.Error(delErr))
		}
		cancel()
		notify.Error(ctx, s.sink, "Could not create account")
		return nil, nil
	}

	notify.Success(ctx, s.sink, "Account Created!")
	out := record.Clone()
	return &out, nil
}

// LoginUser inicia sesion y adopta el perfil si el registro esta completo.
func (s *SessionStore) LoginUser(ctx context.Context, emailAddr, password string) (*domain.UserRecord, error) {
	unlock, seq, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loginLocked(ctx, seq, emailAddr, password)
}

func (s *SessionStore) loginLocked(ctx context.Context, seq uint64, emailAddr, password string) (*domain.UserRecord, error) {
	user, err := s.admit(ctx, emailAddr, password)
	if err != nil {
		s.logger.Info("login refused", zap.String("email", emailAddr), zap.Error(err))
		notify.Error(ctx, s.sink, loginFailureMessage(err))
		return nil, err
	}
	s.apply(seq, &user)
	notify.Success(ctx, s.sink, "Login Successful")
	out := user.Clone()
	return &out, nil
}

// admit hace el sign in y las validaciones del login. Si algo falla despues de
// autenticar, cierra la sesion del proveedor para no dejar una identidad sin perfil valido.
func (s *SessionStore) admit(ctx context.Context, emailAddr, password string) (domain.UserRecord, error) {
	rctx, cancel := s.remote(ctx)
	_, err := s.provider.SignIn(rctx, emailAddr, password)
	cancel()
	if err != nil {
		return domain.UserRecord{}, err
	}

	user, err := s.loadAdmissible(ctx)
	if err != nil {
		s.rollbackSignIn(ctx)
		return domain.UserRecord{}, err
	}
	return user, nil
}

func (s *SessionStore) loadAdmissible(ctx context.Context) (domain.UserRecord, error) {
	rctx, cancel := s.remote(ctx)
	ident, err := s.provider.Reload(rctx)
	cancel()
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("reload identity: %w", err)
	}

	rctx, cancel = s.remote(ctx)
	user, err := s.users.Get(rctx, ident.ID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return domain.UserRecord{}, ErrProfileMissing
		}
		return domain.UserRecord{}, err
	}
	if !user.IsComplete() {
		return domain.UserRecord{}, ErrRegistrationIncomplete
	}

	if ident.Verified && !user.EmailVerified {
		rctx, cancel = s.remote(ctx)
		user, err = s.users.Update(rctx, ident.ID, domain.Fields{"emailVerified": true})
		cancel()
		if err != nil {
			return domain.UserRecord{}, err
		}
	}

	rctx, cancel = s.remote(ctx)
	err = s.storage.Set(rctx, sessionMarkerKey, ident.ID)
	cancel()
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("persist session marker: %w", err)
	}
	return user, nil
}

func (s *SessionStore) rollbackSignIn(ctx context.Context) {
	rctx, cancel := s.remote(ctx)
	defer cancel()
	if err := s.provider.SignOut(rctx); err != nil {
		s.logger.Warn("rollback sign in failed", zap.Error(err))
	}
}

func loginFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrProfileMissing):
		return "User record not found. Contact Support."
	case errors.Is(err, ErrRegistrationIncomplete):
		return "Please complete registration"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	default:
		return "Login failed"
	}
}

// LogoutUser cierra la sesion. Es idempotente: el estado local queda limpio aunque
// la sesion ya estuviera cerrada o falle alguna llamada remota.
func (s *SessionStore) LogoutUser(ctx context.Context) error {
	unlock, seq, err := s.begin()
	if err != nil {
		return err
	}
	defer unlock()

	var errs []error
	rctx, cancel := s.remote(ctx)
	if err := s.provider.SignOut(rctx); err != nil {
		errs = append(errs, fmt.Errorf("sign out: %w", err))
	}
	cancel()

	rctx, cancel = s.remote(ctx)
	if err := s.storage.Remove(rctx, sessionMarkerKey); err != nil {
		errs = append(errs, fmt.Errorf("clear session marker: %w", err))
	}
	cancel()

	s.apply(seq, nil)
	notify.Success(ctx, s.sink, "Logged Out")
	return errors.Join(errs...)
}

// UpdateUser hace merge parcial de fields en el documento remoto y en el usuario
// actual si es la misma identidad. Sin usuario actual devuelve los campos enviados.
func (s *SessionStore) UpdateUser(ctx context.Context, id string, fields domain.Fields) (*domain.UserRecord, error) {
	unlock, seq, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.updateLocked(ctx, seq, id, fields)
}

func (s *SessionStore) updateLocked(ctx context.Context, seq uint64, id string, fields domain.Fields) (*domain.UserRecord, error) {
	normalized, err := fields.Normalize()
	if err != nil {
		return nil, err
	}

	rctx, cancel := s.remote(ctx)
	stored, err := s.users.Get(rctx, id)
	cancel()
	if err != nil {
		return nil, err
	}
	if err := stored.CheckFields(normalized); err != nil {
		return nil, err
	}
	if _, err := stored.Merge(normalized); err != nil {
		return nil, err
	}

	rctx, cancel = s.remote(ctx)
	updated, err := s.users.Update(rctx, id, normalized)
	cancel()
	if err != nil {
		return nil, err
	}

	current := s.CurrentUser()
	switch {
	case current == nil:
		view, err := recordFromFields(normalized)
		if err != nil {
			return nil, err
		}
		return &view, nil
	case current.UID == id:
		merged, err := current.Merge(normalized)
		if err != nil {
			return nil, err
		}
		s.apply(seq, &merged)
		return &merged, nil
	default:
		return &updated, nil
	}
}

func recordFromFields(fields domain.Fields) (domain.UserRecord, error) {
	doc, err := domain.ApplyFields(map[string]any{}, fields)
	if err != nil {
		return domain.UserRecord{}, err
	}
	return domain.UserRecordFromDocument(doc)
}

// FinalizeRegistration asigna el anweshaId, marca el registro como completo y
// guarda los datos extra del formulario. Si ya estaba finalizado devuelve el codigo existente.
func (s *SessionStore) FinalizeRegistration(ctx context.Context, id string, formData domain.Fields) (string, error) {
	unlock, seq, err := s.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	rctx, cancel := s.remote(ctx)
	stored, err := s.users.Get(rctx, id)
	cancel()
	if err != nil {
		return "", err
	}
	if stored.AnweshaID != nil {
		if stored.IsComplete() {
			return *stored.AnweshaID, nil
		}
		if _, err := s.updateLocked(ctx, seq, id, finalizeFields(formData, *stored.AnweshaID)); err != nil {
			return "", err
		}
		return *stored.AnweshaID, nil
	}

	for attempt := 1; attempt <= s.opts.AnweshaIDMaxAttempts; attempt++ {
		code, err := s.opts.NewAnweshaID()
		if err != nil {
			return "", err
		}

		rctx, cancel := s.remote(ctx)
		taken, err := s.users.AnweshaIDTaken(rctx, code)
		cancel()
		if err != nil {
			return "", err
		}
		if taken {
			s.logger.Info("anwesha id collision", zap.String("anwesha_id", code), zap.Int("attempt", attempt))
			continue
		}

		_, err = s.updateLocked(ctx, seq, id, finalizeFields(formData, code))
		if errors.Is(err, repository.ErrDuplicateKey) {
			s.logger.Info("anwesha id taken concurrently", zap.String("anwesha_id", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", ErrAnweshaIDExhausted
}

// finalizeFields combina el formulario con status y codigo; estos dos siempre ganan.
func finalizeFields(formData domain.Fields, code string) domain.Fields {
	fields := make(domain.Fields, len(formData)+2)
	for k, v := range formData {
		fields[k] = v
	}
	fields["anweshaId"] = code
	fields["status"] = string(domain.StatusSuccessful)
	return fields
}

// begin toma el lock de mutaciones y asigna el numero de secuencia de la operacion.
func (s *SessionStore) begin() (func(), uint64, error) {
	select {
	case <-s.done:
		return nil, 0, ErrSessionDisposed
	default:
	}
	s.opMu.Lock()
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return s.opMu.Unlock, seq, nil
}

func (s *SessionStore) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.RemoteTimeout)
}

// apply reemplaza el usuario actual si seq no es anterior a la ultima escritura aplicada.
func (s *SessionStore) apply(seq uint64, user *domain.UserRecord) bool {
	s.mu.Lock()
	if seq < s.appliedSeq {
		s.mu.Unlock()
		return false
	}
	s.appliedSeq = seq
	if user == nil {
		s.current = nil
	} else {
		cp := user.Clone()
		s.current = &cp
	}
	state, watchers := s.stateLocked(), s.watchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w(state)
	}
	return true
}

func (s *SessionStore) finishLoading() {
	s.mu.Lock()
	changed := s.loading
	s.loading = false
	state, watchers := s.stateLocked(), s.watchersLocked()
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	if changed {
		for _, w := range watchers {
			w(state)
		}
	}
}

func (s *SessionStore) stateLocked() SessionState {
	state := SessionState{Loading: s.loading}
	if s.current != nil {
		cp := s.current.Clone()
		state.CurrentUser = &cp
	}
	return state
}

func (s *SessionStore) watchersLocked() []func(SessionState) {
	out := make([]func(SessionState), 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}
