// Package navigation arma las entradas de la barra de navegacion que dependen de la sesion.
package navigation

import (
	"context"
	"net/url"
	"sync"

	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/notify"
)

// SessionSource es lo que la barra necesita del SessionStore.
type SessionSource interface {
	CurrentUser() *domain.UserRecord
	LogoutUser(ctx context.Context) error
}

type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Badge identifica al usuario autenticado dentro del drawer.
type Badge struct {
	FullName  string `json:"fullName"`
	AnweshaID string `json:"anweshaId,omitempty"`
	Href      string `json:"href"`
}

type Menu struct {
	Account    Link   `json:"account"`
	Drawer     Link   `json:"drawer"`
	Badge      *Badge `json:"badge,omitempty"`
	ShowLogout bool   `json:"showLogout"`
	DrawerOpen bool   `json:"drawerOpen"`
}

const (
	profilePath = "/profile"
	loginPath   = "/login"
)

// Shell es el estado transitorio de la barra de una sesion: solo el drawer.
type Shell struct {
	session SessionSource
	sink    notify.Sink

	mu         sync.Mutex
	drawerOpen bool
}

func NewShell(session SessionSource, sink notify.Sink) *Shell {
	return &Shell{session: session, sink: sink}
}

// Menu resuelve las entradas para el usuario actual. currentPath se usa para volver
// a la misma pagina despues del login.
func (s *Shell) Menu(currentPath string) Menu {
	menu := Menu{DrawerOpen: s.DrawerOpen()}
	user := s.session.CurrentUser()
	if user == nil {
		menu.Account = Link{Label: "LOGIN", Href: loginPath + "?from=" + url.QueryEscape(currentPath)}
		menu.Drawer = Link{Label: "Login", Href: loginPath}
		return menu
	}

	menu.Account = Link{Label: "PROFILE", Href: profilePath}
	menu.Drawer = Link{Label: "Profile", Href: profilePath}
	menu.ShowLogout = true
	badge := &Badge{FullName: user.FullName(), Href: profilePath}
	if user.AnweshaID != nil {
		badge.AnweshaID = *user.AnweshaID
	}
	menu.Badge = badge
	return menu
}

func (s *Shell) DrawerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawerOpen
}

// ToggleDrawer invierte el drawer y devuelve el nuevo estado.
func (s *Shell) ToggleDrawer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawerOpen = !s.drawerOpen
	return s.drawerOpen
}

func (s *Shell) CloseDrawer() {
	s.mu.Lock()
	s.drawerOpen = false
	s.mu.Unlock()
}

// Logout cierra la sesion, cierra el drawer y avisa. El drawer se cierra aunque
// el logout remoto falle: el estado local ya quedo limpio.
func (s *Shell) Logout(ctx context.Context) error {
	err := s.session.LogoutUser(ctx)
	s.CloseDrawer()
	notify.Success(ctx, s.sink, "Logged out!")
	return err
}
