package identity

import (
	"context"
	"errors"
	"sync"
)

// Client es el estado de autenticacion de una sesion. Implementa Provider.
type Client struct {
	dir *Directory

	// emitMu serializa cambio de estado + notificacion para que los listeners
	// vean los eventos en el mismo orden en que ocurrieron.
	emitMu sync.Mutex

	mu        sync.Mutex
	current   *Identity
	listeners map[int]Listener
	nextID    int
}

var _ Provider = (*Client)(nil)

func (c *Client) CreateAccount(ctx context.Context, emailAddr, password string) (Identity, error) {
	cred, err := c.dir.CreateAccount(ctx, emailAddr, password)
	if err != nil {
		return Identity{}, err
	}
	id := toIdentity(cred)
	c.setCurrent(&id)
	return id, nil
}

func (c *Client) SignIn(ctx context.Context, emailAddr, password string) (Identity, error) {
	cred, err := c.dir.Authenticate(ctx, emailAddr, password)
	if err != nil {
		return Identity{}, err
	}
	id := toIdentity(cred)
	c.setCurrent(&id)
	return id, nil
}

func (c *Client) SignOut(_ context.Context) error {
	c.setCurrent(nil)
	return nil
}

func (c *Client) Reload(ctx context.Context) (Identity, error) {
	cur := c.Current()
	if cur == nil {
		return Identity{}, ErrNotSignedIn
	}
	cred, err := c.dir.Lookup(ctx, cur.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.setCurrent(nil)
		}
		return Identity{}, err
	}
	id := toIdentity(cred)

	c.mu.Lock()
	if c.current != nil && c.current.ID == id.ID {
		refreshed := id
		c.current = &refreshed
	}
	c.mu.Unlock()
	return id, nil
}

func (c *Client) Resume(ctx context.Context, id string) error {
	cred, err := c.dir.Lookup(ctx, id)
	if err != nil {
		return err
	}
	resumed := toIdentity(cred)
	c.setCurrent(&resumed)
	return nil
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	if err := c.dir.DeleteAccount(ctx, id); err != nil {
		return err
	}
	if cur := c.Current(); cur != nil && cur.ID == id {
		c.setCurrent(nil)
	}
	return nil
}

// Current devuelve una copia de la identidad autenticada, o nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Client) Subscribe(l Listener) func() {
	c.emitMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	state := c.stateLocked()
	c.mu.Unlock()
	l(state)
	c.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// setCurrent cambia la identidad y notifica solo si hubo un cambio real.
func (c *Client) setCurrent(next *Identity) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if sameIdentity(c.current, next) {
		c.current = next
		c.mu.Unlock()
		return
	}
	c.current = next
	state := c.stateLocked()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (c *Client) stateLocked() AuthState {
	if c.current == nil {
		return AuthState{}
	}
	cp := *c.current
	return AuthState{Identity: &cp}
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
