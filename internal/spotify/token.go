package spotify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"podfinder/internal/catalog"
	"podfinder/internal/metrics"
)

const (
	// DefaultTokenURL is the client-credentials token endpoint.
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	tokenSafetyMargin = 30 * time.Second
	defaultExpiresIn  = time.Hour
)

// TokenState is the lifecycle state of the bearer credential.
type TokenState int

// Token states.
const (
	TokenUnset TokenState = iota
	TokenValid
	TokenExpired
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "unset"
	}
}

// TokenManager owns a single bearer token and renews it shortly before it
// expires or when a request reports it as rejected.
type TokenManager struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time
	log        *slog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenOption customises TokenManager construction.
type TokenOption func(*TokenManager)

// WithTokenHTTPClient overrides the HTTP client used for token exchanges.
func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(m *TokenManager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(log *slog.Logger) TokenOption {
	return func(m *TokenManager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewTokenManager builds a TokenManager for the client-credentials grant.
// Missing credentials are reported as an authentication error.
func NewTokenManager(clientID, clientSecret, tokenURL string, opts ...TokenOption) (*TokenManager, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, &catalog.AuthError{Err: errors.New("client id and client secret are required")}
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	m := &TokenManager{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State reports the lifecycle state at the current time.
func (m *TokenManager) State() TokenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *TokenManager) stateLocked() TokenState {
	switch {
	case m.token == "":
		return TokenUnset
	case m.now().Before(m.expiry):
		return TokenValid
	default:
		return TokenExpired
	}
}

// Token returns a valid bearer token, exchanging credentials when the current
// one is unset or expired.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stateLocked() == TokenValid {
		return m.token, nil
	}
	return m.exchangeLocked(ctx)
}

// Refresh discards the current token and exchanges credentials again.
// Two callers refreshing at once simply exchange twice.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	return m.exchangeLocked(ctx)
}

func (m *TokenManager) exchangeLocked(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	requestedAt := m.now()

	tok, err := m.cfg.Token(ctx)
	metrics.TokenRefreshes.Inc()
	if err != nil {
		return "", authError(err)
	}
	if tok.AccessToken == "" {
		return "", &catalog.AuthError{Err: errors.New("token endpoint returned an empty access token")}
	}

	expiresIn := defaultExpiresIn
	switch {
	case tok.ExpiresIn > 0:
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		expiresIn = time.Until(tok.Expiry)
	}

	m.token = tok.AccessToken
	m.expiry = requestedAt.Add(expiresIn - tokenSafetyMargin)
	m.log.Debug("obtained bearer token", "expires_at", m.expiry.UTC().Format(time.RFC3339))
	return m.token, nil
}

func authError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return &catalog.AuthError{Status: rErr.Response.StatusCode, Body: truncate(string(rErr.Body)), Err: err}
	}
	return &catalog.AuthError{Err: err}
}
