// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package logger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.astrophena.name/rssmail/internal/testutil"
)

func TestLogfWriter(t *testing.T) {
	t.Parallel()

	var (
		logged  bool
		message string
	)
	logf := func(format string, args ...any) {
		logged = true
		message = fmt.Sprintf(format, args...)
	}
	Logf(logf).Write([]byte("hello"))
	testutil.AssertEqual(t, logged, true)
	testutil.AssertEqual(t, message, "hello")
}

func TestGetPut(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf)
	ctx := Put(context.Background(), l)

	got := Get(ctx)
	if got != l {
		t.Fatal("Get returned a different logger than was Put")
	}

	got.Debug("hidden")
	got.Level.Set(slog.LevelDebug)
	got.Debug("shown", "item", "https://example.com/1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record logged at info level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "item=https://example.com/1") {
		t.Errorf("debug record not logged after level change: %q", out)
	}
}

func TestGetWithoutLogger(t *testing.T) {
	t.Parallel()

	l := Get(context.Background())
	if l == nil || l.Logger == nil || l.Level == nil {
		t.Fatal("Get must always return a usable logger")
	}
	l.Info("goes nowhere")
}
