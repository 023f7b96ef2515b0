// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request provides utilities for making HTTP requests.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/rssmail/internal/version"
)

// DefaultClient is a [http.Client] with nice defaults.
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
}

// Params defines the parameters needed for making an HTTP request.
type Params struct {
	// Method is the HTTP method (GET, POST, etc.) for the request.
	Method string
	// URL is the target URL of the request.
	URL string
	// Headers is a map of key-value pairs for additional request headers.
	Headers map[string]string
	// Body is any data to be sent in the request body. Byte slices are sent
	// as is, everything else is marshaled to JSON.
	Body any
	// WantStatusCode is the expected status code. Defaults to 200 OK.
	WantStatusCode int
	// HTTPClient is an optional custom HTTP client object to use for the
	// request. If not provided, DefaultClient will be used.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// Bytes is a response type that makes [Make] return the raw response body.
type Bytes []byte

// IgnoreResponse is a response type that makes [Make] skip reading the
// response body.
type IgnoreResponse struct{}

// StatusError is returned when a server responds with an unexpected status
// code.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the beginning of the response body.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %q: want 200, got %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// readLimit caps how much of an error response body is kept.
const readLimit = 16384

type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (se *scrubbedError) Error() string {
	if se.scrubber != nil {
		return se.scrubber.Replace(se.err.Error())
	}
	return se.err.Error()
}

func (se *scrubbedError) Unwrap() error { return se.err }

func scrubErr(err error, scrubber *strings.Replacer) error {
	if scrubber == nil {
		return err
	}
	return &scrubbedError{err: err, scrubber: scrubber}
}

// Make makes an HTTP request with the provided parameters and decodes the
// response into Response. Use [Bytes] to get the raw body and
// [IgnoreResponse] to discard it; any other type is unmarshaled from JSON.
func Make[Response any](ctx context.Context, p Params) (Response, error) {
	var resp Response

	var br io.Reader
	switch body := p.Body.(type) {
	case nil:
	case []byte:
		br = bytes.NewReader(body)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return resp, scrubErr(err, p.Scrubber)
		}
		br = bytes.NewReader(data)
		if p.Headers == nil || p.Headers["Content-Type"] == "" {
			p.Headers = withHeader(p.Headers, "Content-Type", "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, br)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}

	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	httpc := DefaultClient
	if p.HTTPClient != nil {
		httpc = p.HTTPClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}
	defer res.Body.Close()

	wantStatus := http.StatusOK
	if p.WantStatusCode != 0 {
		wantStatus = p.WantStatusCode
	}
	if res.StatusCode != wantStatus {
		b, _ := io.ReadAll(io.LimitReader(res.Body, readLimit))
		return resp, scrubErr(&StatusError{
			Method:     p.Method,
			URL:        p.URL,
			StatusCode: res.StatusCode,
			Body:       b,
		}, p.Scrubber)
	}

	switch v := any(&resp).(type) {
	case *IgnoreResponse:
		return resp, nil
	case *Bytes:
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return resp, scrubErr(err, p.Scrubber)
		}
		*v = b
		return resp, nil
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, scrubErr(err, p.Scrubber)
	}
	return resp, nil
}

func withHeader(h map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for hk, hv := range h {
		out[hk] = hv
	}
	out[k] = v
	return out
}
