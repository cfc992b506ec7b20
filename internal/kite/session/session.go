package session

import (
	"context"
	"fmt"

	"barcollector/config"
	"barcollector/pkg/kite"

	"go.uber.org/zap"
)

// Manager automates the broker login: it resolves credentials, exchanges a
// request token for an access token and revokes the session on shutdown.
type Manager struct {
	cfg    config.KiteConfig
	rest   *kite.RESTClient
	logger *zap.Logger

	apiKey      string
	accessToken string
}

func NewManager(cfg config.KiteConfig, rest *kite.RESTClient, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, rest: rest, logger: logger}
}

// Establish returns a usable access token. A token configured directly is
// used as-is; otherwise the configured request token is exchanged.
func (m *Manager) Establish(ctx context.Context) (string, error) {
	apiKey, apiSecret := m.cfg.ResolveKiteCredentials()
	if apiKey == "" {
		return "", fmt.Errorf("kite api key not configured")
	}
	m.apiKey = apiKey

	if m.cfg.AccessToken != "" {
		m.accessToken = m.cfg.AccessToken
		m.logger.Info("using configured access token")
		return m.accessToken, nil
	}

	if m.cfg.RequestToken == "" {
		return "", fmt.Errorf("neither access_token nor request_token configured")
	}

	session, err := m.rest.CreateSession(ctx, apiKey, m.cfg.RequestToken, apiSecret)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}

	m.accessToken = session.AccessToken
	m.logger.Info("session established",
		zap.String("user_id", session.UserID),
		zap.String("login_time", session.LoginTime))
	return m.accessToken, nil
}

// APIKey returns the resolved key; valid after Establish.
func (m *Manager) APIKey() string {
	return m.apiKey
}

// Invalidate revokes the access token. Best effort: a failure is logged by
// the caller, not retried.
func (m *Manager) Invalidate(ctx context.Context) error {
	if m.accessToken == "" {
		return nil
	}
	if err := m.rest.InvalidateSession(ctx, m.apiKey, m.accessToken); err != nil {
		return fmt.Errorf("session invalidation failed: %w", err)
	}
	m.accessToken = ""
	return nil
}
