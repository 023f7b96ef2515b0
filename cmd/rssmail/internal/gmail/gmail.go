// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gmail sends email through the Gmail API on behalf of a user who
// granted access with OAuth.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.astrophena.name/rssmail/cmd/rssmail/internal/sender"
	"go.astrophena.name/rssmail/internal/request"
	"go.astrophena.name/rssmail/internal/version"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoToken is returned when the token file does not exist yet.
var ErrNoToken = errors.New("no OAuth token, run 'rssmail auth' first")

// Config configures access to the Gmail API.
type Config struct {
	// CredentialsFile is the OAuth client secrets file downloaded from Google
	// Cloud console.
	CredentialsFile string
	// TokenFile holds the user's OAuth token. Refreshed tokens are written
	// back to it.
	TokenFile string
	// SendRate limits messages per second. Zero means unlimited.
	SendRate float64
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
	// HTTPClient is used for OAuth and API requests. If nil,
	// request.DefaultClient is used.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Authenticator produces senders authorized with the configured token.
type Authenticator struct {
	cfg Config
}

// NewAuthenticator returns a new Authenticator.
func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = request.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{cfg: cfg}
}

func (a *Authenticator) oauthConfig() (*oauth2.Config, error) {
	b, err := os.ReadFile(a.cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", a.cfg.CredentialsFile, err)
	}
	return conf, nil
}

func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
}

// Authenticate loads credentials and the token, makes sure a valid access
// token can be obtained, and returns a sender that uses it.
func (a *Authenticator) Authenticate(ctx context.Context) (sender.Sender, error) {
	conf, err := a.oauthConfig()
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(a.cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	octx := a.oauthContext(ctx)
	ts := &persistingSource{
		src:  conf.TokenSource(octx, tok),
		path: a.cfg.TokenFile,
		last: tok.AccessToken,
		slog: a.cfg.Logger,
	}
	// Fail now rather than on every send.
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("obtaining access token: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(octx, ts))}
	if a.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.Endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	svc.UserAgent = version.UserAgent()

	limit := rate.Inf
	if a.cfg.SendRate > 0 {
		limit = rate.Limit(a.cfg.SendRate)
	}
	return &Sender{
		svc:     svc,
		limiter: rate.NewLimiter(limit, 1),
		slog:    a.cfg.Logger,
	}, nil
}

// Sender sends messages as the authenticated user.
type Sender struct {
	svc     *gmail.Service
	limiter *rate.Limiter
	slog    *slog.Logger
}

var _ sender.Sender = (*Sender)(nil)

// Send delivers msg. It waits for the rate limiter first and gives up if ctx
// is done while waiting.
func (s *Sender) Send(ctx context.Context, msg sender.Message) error {
	raw, err := Compose(msg)
	if err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	sent, err := s.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return err
	}
	s.slog.Debug("sent message", "to", msg.To.Address, "id", sent.Id)
	return nil
}
