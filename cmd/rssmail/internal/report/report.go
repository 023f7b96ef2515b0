// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package report tells the operator how a run went: a summary on the console
// and one line per problem in an append-only error log.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.astrophena.name/rssmail/cmd/rssmail/internal/dispatch"
)

// Options configure a Reporter.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// LogPath is the error log. Empty disables it.
	LogPath string
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
}

// Reporter writes run summaries and error log entries.
type Reporter struct {
	opts Options
}

// New returns a new Reporter.
func New(opts Options) *Reporter {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reporter{opts: opts}
}

type entry struct {
	source string
	msg    string
}

// Report prints the summary of o and appends its problems to the error log.
func (r *Reporter) Report(o *dispatch.Outcome) {
	if o == nil {
		return
	}
	r.printSummary(o)

	var entries []entry
	if o.Err != nil {
		entries = append(entries, entry{fatalSource(o.Status), o.Err.Error()})
	}
	for _, f := range o.Failures {
		entries = append(entries, entry{"send", fmt.Sprintf("%s to %s: %v", f.Identity, f.Recipient, f.Err)})
	}
	for _, d := range o.Diagnostics {
		msg := d.Err.Error()
		if d.Identity != "" {
			msg = d.Identity + ": " + msg
		}
		entries = append(entries, entry{d.Source, msg})
	}
	r.log(entries)
}

// Logf appends a single entry to the error log.
func (r *Reporter) Logf(source string, err error) {
	if err == nil {
		return
	}
	r.log([]entry{{source, err.Error()}})
}

// Headline returns the first line of the summary for o.
func Headline(o *dispatch.Outcome) string {
	switch {
	case o.Status != dispatch.StatusCompleted:
		return fmt.Sprintf("RSS check failed: %v", o.Err)
	case o.Attempted > 0:
		return "RSS check complete and emails sent."
	default:
		return "RSS check complete. No emails to send."
	}
}

func (r *Reporter) printSummary(o *dispatch.Outcome) {
	w := r.opts.Stdout
	fmt.Fprintln(w, Headline(o))
	if o.Status != dispatch.StatusCompleted {
		return
	}
	fmt.Fprintf(w, "Items: %d seen, %d new, %d skipped, %d filtered.\n", o.Seen, o.New, o.Skipped, o.Filtered)
	fmt.Fprintf(w, "Sends: %d attempted, %d succeeded, %d failed.\n", o.Attempted, o.Succeeded, o.Failed)
	if o.LedgerFailures > 0 || o.Unrecorded > 0 {
		fmt.Fprintf(w, "Ledger: %d write failures, %d items left for the next run.\n", o.LedgerFailures, o.Unrecorded)
	}
	for _, f := range o.Failures {
		fmt.Fprintf(w, "Failed to send %s to %s: %v\n", f.Identity, f.Recipient, f.Err)
	}
	fmt.Fprintf(w, "Took %v.\n", o.Duration.Round(time.Millisecond))
}

func fatalSource(s dispatch.Status) string {
	switch s {
	case dispatch.StatusNoRecipients:
		return "recipients"
	case dispatch.StatusAuthFailure:
		return "auth"
	case dispatch.StatusFeedFetchFailure:
		return "feed"
	default:
		return "dispatch"
	}
}

func (r *Reporter) log(entries []entry) {
	if len(entries) == 0 || r.opts.LogPath == "" {
		return
	}

	ts := r.opts.Now().Format(time.RFC3339)
	var sb strings.Builder
	for _, e := range entries {
		// One entry per line, whatever the error text contains.
		msg := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(e.msg)
		fmt.Fprintf(&sb, "%s Source: %s Error: %s\n", ts, e.source, msg)
	}

	if err := appendFile(r.opts.LogPath, sb.String()); err != nil {
		fmt.Fprintln(r.opts.Stderr, "Error logging previous error.")
		fmt.Fprintf(r.opts.Stderr, "Make sure the error log is writable: %v\n", err)
	}
}

func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
