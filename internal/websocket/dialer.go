package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
)

const defaultHandshakeTimeout = 10 * time.Second

// Dialer opens client connections to the coaching server
type Dialer struct {
	URL   string
	Token string

	HandshakeTimeout time.Duration

	logger *zap.Logger
}

// NewDialer creates a dialer for url authenticating with a bearer token
func NewDialer(url, token string, logger *zap.Logger) *Dialer {
	return &Dialer{
		URL:              url,
		Token:            token,
		HandshakeTimeout: defaultHandshakeTimeout,
		logger:           logger,
	}
}

// Dial connects and starts the pumps
func (d *Dialer) Dial(ctx context.Context) (repositories.Connection, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", d.URL, err)
	}

	d.logger.Info("Connected to coaching server", zap.String("url", d.URL))

	return newConn(ws, d.logger), nil
}
