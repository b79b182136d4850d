package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nooodle-soup/Theia/internal/transport"
)

// M2M tokens are valid for two hours. The default TTL renews a little
// early so a token never expires mid-request.
const defaultTTL = 2*time.Hour - 5*time.Minute

// Common errors.
var (
	// ErrNotLoggedIn is returned when a token is requested before Login.
	ErrNotLoggedIn = errors.New("session: not logged in")

	// ErrExpired is returned when the token has lapsed and auto-renew is
	// disabled.
	ErrExpired = errors.New("session: token expired")

	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("session: username and password are required")
)

// Credentials holds the account credentials sent to the login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Options configures the session manager.
type Options struct {
	// TTL is how long a token is trusted after login.
	// Default: just under the service's two hour token lifetime.
	TTL time.Duration

	// AutoRenew re-logins silently when the token lapses.
	// Default in config is true; the zero value here is false.
	AutoRenew bool
}

// Manager owns the auth token lifecycle: acquisition, expiry, renewal, and
// invalidation. Token state is guarded by a mutex; when the token lapses,
// exactly one caller performs the renewal while the others block briefly
// and then observe the refreshed token.
type Manager struct {
	client transport.Client
	creds  Credentials
	opts   Options

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewManager creates a session manager. The token starts absent; call Login
// or rely on EnsureValid with AutoRenew.
func NewManager(client transport.Client, creds Credentials, opts Options) (*Manager, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Manager{client: client, creds: creds, opts: opts}, nil
}

// Login acquires a fresh token. Authentication failures are never retried.
func (m *Manager) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.login(ctx)
}

// login acquires a token. Callers must hold m.mu.
func (m *Manager) login(ctx context.Context) error {
	slog.Info("logging in", "username", m.creds.Username)

	data, err := m.client.Post(ctx, "login", m.creds)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var token string
	if err := json.Unmarshal(data, &token); err != nil || token == "" {
		return fmt.Errorf("%w: login returned no token", transport.ErrService)
	}

	m.token = token
	m.issuedAt = time.Now()
	m.client.SetToken(token)

	slog.Info("logged in")
	return nil
}

// EnsureValid returns the current token, renewing it first if it has
// expired and auto-renew is enabled.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		if !m.opts.AutoRenew {
			return "", ErrNotLoggedIn
		}
		if err := m.login(ctx); err != nil {
			return "", err
		}
		return m.token, nil
	}

	if time.Since(m.issuedAt) < m.opts.TTL {
		return m.token, nil
	}

	if !m.opts.AutoRenew {
		return "", ErrExpired
	}

	slog.Info("token expired, renewing")
	if err := m.login(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Logout invalidates the server-side token and clears local state. Calling
// it without an active session is a no-op, never an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return nil
	}

	slog.Info("logging out")
	_, err := m.client.Post(ctx, "logout", nil)

	// Local state is cleared even if the server call failed; the token
	// will lapse server-side on its own within two hours.
	m.token = ""
	m.issuedAt = time.Time{}
	m.client.ClearToken()

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	slog.Info("logged out")
	return nil
}

// LoggedIn reports whether an unexpired token is held.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != "" && time.Since(m.issuedAt) < m.opts.TTL
}
