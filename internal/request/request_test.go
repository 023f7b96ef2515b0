// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package request_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/rssmail/internal/request"
	"go.astrophena.name/rssmail/internal/testutil"
	"go.astrophena.name/rssmail/internal/version"
)

func testServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != version.UserAgent() {
			http.Error(w, "bad user agent", http.StatusBadRequest)
			return
		}
		w.Write([]byte("<rss/>"))
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		w.Write(b)
	})
	mux.HandleFunc("PUT /empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /secret", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token hunter2 rejected", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMakeBytes(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	got, err := request.Make[request.Bytes](t.Context(), request.Params{
		Method: http.MethodGet,
		URL:    srv.URL + "/feed.xml",
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(got), "<rss/>")
}

func TestMakeJSON(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	type message struct {
		Text string `json:"text"`
	}
	got, err := request.Make[message](t.Context(), request.Params{
		Method: http.MethodPost,
		URL:    srv.URL + "/echo",
		Body:   message{Text: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, message{Text: "hello"})
}

func TestMakeIgnoreResponse(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	_, err := request.Make[request.IgnoreResponse](t.Context(), request.Params{
		Method:         http.MethodPut,
		URL:            srv.URL + "/empty",
		Body:           []byte("raw"),
		WantStatusCode: http.StatusNoContent,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMakeStatusError(t *testing.T) {
	t.Parallel()
	srv := testServer(t)

	_, err := request.Make[request.Bytes](t.Context(), request.Params{
		Method:   http.MethodGet,
		URL:      srv.URL + "/secret",
		Scrubber: strings.NewReplacer("hunter2", "[EXPUNGED]"),
	})
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want *request.StatusError, got %T: %v", err, err)
	}
	testutil.AssertEqual(t, statusErr.StatusCode, http.StatusForbidden)
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("error leaks secret: %v", err)
	}
	if !strings.Contains(err.Error(), "[EXPUNGED]") {
		t.Fatalf("error is not scrubbed: %v", err)
	}
}
