// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package dispatch

import (
	"errors"
	"time"
)

// Some types of errors that can happen during a run.
var (
	ErrNoRecipients = errors.New("no recipients configured")
	ErrAuth         = errors.New("authentication failed")
	ErrFeedFetch    = errors.New("fetching feed failed")
	ErrSend         = errors.New("sending failed")
	ErrLedgerWrite  = errors.New("recording to ledger failed")
	ErrLedgerRead   = errors.New("reading ledger failed")
)

// Status is how a run ended.
type Status int

const (
	// StatusCompleted means the run processed the whole feed. Individual
	// sends may still have failed.
	StatusCompleted Status = iota
	// StatusNoRecipients means there was nobody to send to.
	StatusNoRecipients
	// StatusAuthFailure means the mail service rejected the credentials.
	StatusAuthFailure
	// StatusFeedFetchFailure means the feed could not be fetched or parsed.
	StatusFeedFetchFailure
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNoRecipients:
		return "no recipients"
	case StatusAuthFailure:
		return "auth failure"
	case StatusFeedFetchFailure:
		return "feed fetch failure"
	default:
		return "unknown"
	}
}

// Failure is a send that did not go through.
type Failure struct {
	Identity  string
	Recipient string
	Err       error
}

// Diagnostic is any other non-fatal problem noticed during a run.
type Diagnostic struct {
	// Source names the part of the run the problem came from: recipients,
	// feed, rules, ledger or dispatch.
	Source   string
	Identity string
	Err      error
}

// Outcome summarizes a run.
type Outcome struct {
	Status Status
	// Err is the error that ended the run early. Nil when Status is
	// StatusCompleted.
	Err error

	Started  time.Time
	Duration time.Duration

	Seen           int // items in the feed
	New            int // items not in the ledger and not filtered out
	Skipped        int // items without an identity
	Filtered       int // items rejected by rules
	Attempted      int // sends attempted
	Succeeded      int // sends that went through
	Failed         int // sends that failed
	LedgerFailures int // items whose record failed
	Unrecorded     int // new items deliberately not recorded

	Failures    []Failure
	Diagnostics []Diagnostic
}

func (o *Outcome) diagnose(source, identity string, err error) {
	o.Diagnostics = append(o.Diagnostics, Diagnostic{Source: source, Identity: identity, Err: err})
}
