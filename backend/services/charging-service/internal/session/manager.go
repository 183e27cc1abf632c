package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chargeway/backend/services/charging-service/internal/models"
)

// CookieName is the session cookie.
const CookieName = "sid"

// CookieOptions controls the Set-Cookie attributes.
type CookieOptions struct {
	Name   string
	Secure bool
	Path   string
}

// Manager ties the cookie codec to the store.
type Manager struct {
	store  *Store
	codec  *Codec
	cookie CookieOptions
	now    func() time.Time
}

// NewManager builds a Manager. Empty cookie fields get defaults.
func NewManager(store *Store, codec *Codec, cookie CookieOptions) *Manager {
	if cookie.Name == "" {
		cookie.Name = CookieName
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &Manager{store: store, codec: codec, cookie: cookie, now: time.Now}
}

// Create opens a session for the user and sets the cookie on w.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, user *models.User) (*Data, error) {
	if user == nil || user.ID.IsZero() {
		return nil, errors.New("session: user is required")
	}
	sid := uuid.NewString()
	data := Data{UserID: user.ID, Role: user.Role, CreatedAt: m.now().UTC()}
	if err := m.store.Save(ctx, sid, data); err != nil {
		return nil, err
	}
	token, err := m.codec.Encode(sid)
	if err != nil {
		_ = m.store.Delete(ctx, sid)
		return nil, err
	}
	http.SetCookie(w, m.newCookie(token, int(m.store.TTL().Seconds())))
	return &data, nil
}

// Load resolves the request's session. Missing, forged or expired cookies yield ErrNotFound.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Data, error) {
	sid, err := m.sessionID(r)
	if err != nil {
		return nil, err
	}
	return m.store.Load(ctx, sid)
}

// Destroy drops the session, if any, and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, m.newCookie("", -1))
	sid, err := m.sessionID(r)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, sid)
}

func (m *Manager) sessionID(r *http.Request) (string, error) {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return "", ErrNotFound
	}
	sid, err := m.codec.Decode(c.Value)
	if err != nil {
		return "", ErrNotFound
	}
	return sid, nil
}

func (m *Manager) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie.Name,
		Value:    value,
		Path:     m.cookie.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
