// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.astrophena.name/rssmail/internal/testutil"
)

// store is the contract both backends implement.
type store interface {
	Load(context.Context) error
	Contains(string) bool
	Record(context.Context, string) error
	Entries() []string
}

func backends(t *testing.T) map[string]func(t *testing.T, dir string) store {
	return map[string]func(t *testing.T, dir string) store{
		"file": func(t *testing.T, dir string) store {
			return NewFile(filepath.Join(dir, "URL_Log.txt"))
		},
		"sqlite": func(t *testing.T, dir string) store {
			s, err := OpenSQLite(t.Context(), filepath.Join(dir, "ledger.db"))
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()

			l := open(t, dir)
			if err := l.Load(t.Context()); err != nil {
				t.Fatalf("loading missing ledger: %v", err)
			}
			testutil.AssertEqual(t, l.Contains("https://a/1"), false)

			for _, id := range []string{"https://a/1", "https://a/2", "https://a/1"} {
				if err := l.Record(t.Context(), id); err != nil {
					t.Fatal(err)
				}
			}
			testutil.AssertEqual(t, l.Contains("https://a/1"), true)
			testutil.AssertEqual(t, l.Entries(), []string{"https://a/1", "https://a/2"})

			// A fresh instance sees what the previous one recorded.
			l2 := open(t, dir)
			if err := l2.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l2.Entries(), []string{"https://a/1", "https://a/2"})
			testutil.AssertEqual(t, l2.Contains("https://a/2"), true)
		})
	}
}

func TestExactMatch(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l := open(t, t.TempDir())
			if err := l.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			if err := l.Record(t.Context(), "https://a/10"); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l.Contains("https://a/1"), false)
			testutil.AssertEqual(t, l.Contains("https://a/"), false)
			testutil.AssertEqual(t, l.Contains("https://a/10"), true)
		})
	}
}

func TestFileLoad(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		content      string
		wantEntries  []string
		wantContains []string
	}{
		"crlf": {
			content:      "https://a/1\r\nhttps://a/2\r\n",
			wantEntries:  []string{"https://a/1", "https://a/2"},
			wantContains: []string{"https://a/1", "https://a/2"},
		},
		"blank lines": {
			content:     "\nhttps://a/1\n\n  \nhttps://a/2",
			wantEntries: []string{"https://a/1", "https://a/2"},
		},
		"escaped line break": {
			content:      "%%tag:a,2024:1%0Apart%2520\n",
			wantEntries:  []string{"tag:a,2024:1\npart%20"},
			wantContains: []string{"tag:a,2024:1\npart%20"},
		},
		"percent-encoded url": {
			content:      "https://x/a%0Ab\nhttps://x/%25\n",
			wantEntries:  []string{"https://x/a%0Ab", "https://x/%25"},
			wantContains: []string{"https://x/a%0Ab", "https://x/%25"},
		},
		"empty": {
			content:     "",
			wantEntries: []string{},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "URL_Log.txt")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			l := NewFile(path)
			if err := l.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l.Entries(), tc.wantEntries)
			for _, id := range tc.wantContains {
				if !l.Contains(id) {
					t.Errorf("Contains(%q) = false, want true", id)
				}
			}
		})
	}
}

func TestFileRecordLineBreak(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "URL_Log.txt")
	l := NewFile(path)
	if err := l.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	const id = "weird\r\nidentity"
	if err := l.Record(t.Context(), id); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "%%weird%0D%0Aidentity\n")

	l2 := NewFile(path)
	if err := l2.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, l2.Contains(id), true)
}

func TestFileDistinctIdentities(t *testing.T) {
	t.Parallel()

	// Each pair differs only in how a character is written.
	cases := map[string]struct {
		record, other string
	}{
		"literal escape":    {record: "https://x/a%0Ab", other: "https://x/a\nb"},
		"line break":        {record: "https://x/a\nb", other: "https://x/a%0Ab"},
		"encoded percent":   {record: "https://x/a%250Ab\r", other: "https://x/a%0Ab\r"},
		"marker":            {record: "%%https://x/a%0Ab", other: "%%https://x/a\nb"},
		"marker and escape": {record: "%%https://x/a\nb", other: "%%https://x/a%0Ab"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "URL_Log.txt")
			l := NewFile(path)
			if err := l.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			if err := l.Record(t.Context(), tc.record); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l.Contains(tc.other), false)

			l2 := NewFile(path)
			if err := l2.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l2.Contains(tc.record), true)
			testutil.AssertEqual(t, l2.Contains(tc.other), false)
			testutil.AssertEqual(t, l2.Entries(), []string{tc.record})

			if err := l2.Record(t.Context(), tc.other); err != nil {
				t.Fatal(err)
			}
			l3 := NewFile(path)
			if err := l3.Load(t.Context()); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, l3.Entries(), []string{tc.record, tc.other})
		})
	}
}

func TestFileRecordTooLong(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "URL_Log.txt")
	l := NewFile(path)
	if err := l.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(t.Context(), "https://a/1"); err != nil {
		t.Fatal(err)
	}

	long := "https://a/" + strings.Repeat("x", maxLine)
	if err := l.Record(t.Context(), long); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Record(long) = %v, want ErrTooLong", err)
	}
	testutil.AssertEqual(t, l.Contains(long), false)

	// The ledger stays readable.
	l2 := NewFile(path)
	if err := l2.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, l2.Entries(), []string{"https://a/1"})
}

func TestFileAppendsToLegacy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "URL_Log.txt")
	if err := os.WriteFile(path, []byte("https://a/1\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewFile(path)
	if err := l.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(t.Context(), "https://a/2"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(b), "https://a/1\r\nhttps://a/2\n")
}

func TestFileLoadError(t *testing.T) {
	t.Parallel()

	// A directory can be opened but not read as a file.
	l := NewFile(t.TempDir())
	if err := l.Load(t.Context()); err == nil {
		t.Fatal("want error reading a directory")
	}
	testutil.AssertEqual(t, l.Contains("anything"), false)
	testutil.AssertEqual(t, l.Entries(), []string{})
}

func TestFileRecordError(t *testing.T) {
	t.Parallel()

	l := NewFile(filepath.Join(t.TempDir(), "missing", "URL_Log.txt"))
	if err := l.Record(t.Context(), "https://a/1"); err == nil {
		t.Fatal("want error writing into a missing directory")
	}
	testutil.AssertEqual(t, l.Contains("https://a/1"), false)
}

func TestSQLiteImport(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Record(t.Context(), "https://a/1"); err != nil {
		t.Fatal(err)
	}
	added, err := s.Import(t.Context(), []string{"https://a/1", "https://a/2", "https://a/3", "https://a/2"})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, added, 2)

	if err := s.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, s.Entries(), []string{"https://a/1", "https://a/2", "https://a/3"})
}

func TestImportFileIntoSQLite(t *testing.T) {
	t.Parallel()

	ids := []string{"https://x/a%0Ab", "https://x/a\nb", "%%tag", "https://x/%25"}

	dir := t.TempDir()
	src := NewFile(filepath.Join(dir, "URL_Log.txt"))
	if err := src.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if err := src.Record(t.Context(), id); err != nil {
			t.Fatal(err)
		}
	}

	reread := NewFile(src.Path())
	if err := reread.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, reread.Entries(), ids)

	db, err := OpenSQLite(t.Context(), filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	added, err := db.Import(t.Context(), reread.Entries())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, added, len(ids))

	if err := db.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if !db.Contains(id) {
			t.Errorf("Contains(%q) = false, want true", id)
		}
	}
	testutil.AssertEqual(t, db.Contains("https://x/a%250Ab"), false)
	testutil.AssertEqual(t, db.Entries(), ids)
}
