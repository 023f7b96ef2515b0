// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package gmail

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

var errStateMismatch = errors.New("OAuth state mismatch, start over")

// Authorize runs the interactive consent flow: it prints the consent URL to
// out, reads the authorization code (or the whole redirect URL) from in,
// exchanges it for a token and writes the token file.
func (a *Authenticator) Authorize(ctx context.Context, in io.Reader, out io.Writer) error {
	conf, err := a.oauthConfig()
	if err != nil {
		return err
	}

	state, err := randomState()
	if err != nil {
		return err
	}
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(out, "Open this link in your browser and allow sending email:\n\n%s\n\n", authURL)
	fmt.Fprint(out, "Paste the authorization code or the full URL you were redirected to: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	code, err := parseCode(strings.TrimSpace(line), state)
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := saveToken(a.cfg.TokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nToken saved to %s.\n", a.cfg.TokenFile)
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseCode accepts either a bare authorization code or a redirect URL that
// carries it, in which case the state must match.
func parseCode(input, state string) (string, error) {
	if input == "" {
		return "", errors.New("no authorization code given")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if got := q.Get("state"); got != state {
		return "", errStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("no code in %q", input)
	}
	return code, nil
}
