// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package dispatch implements a single run: fetch the feed, send every item
// that was not sent before to every recipient, and remember what was sent.
//
// An item is recorded in the ledger once all of its sends were attempted,
// even if some or all of them failed. A recipient whose send failed won't
// get the item on a later run. Set Config.RequireDelivery to leave items
// for which every send failed unrecorded, so the next run tries them again.
package dispatch

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.astrophena.name/rssmail/cmd/rssmail/internal/feed"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/recipients"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/sender"
	"go.astrophena.name/rssmail/internal/syncx"
)

//go:embed message.html
var messageHTML string

var messageTemplate = template.Must(template.New("message").Parse(strings.TrimSpace(messageHTML)))

// Ledger remembers which items were already dispatched.
type Ledger interface {
	Load(ctx context.Context) error
	Contains(identity string) bool
	Record(ctx context.Context, identity string) error
}

// Fetcher fetches feed items.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Item, error)
}

// Authenticator returns a sender ready to deliver mail.
type Authenticator interface {
	Authenticate(ctx context.Context) (sender.Sender, error)
}

// Filter decides whether an item should be sent.
type Filter interface {
	Keep(item feed.Item) (bool, error)
}

// Config is the run configuration.
type Config struct {
	FromName    string
	FromAddress string
	FeedURL     string
	// Recipients is the raw recipients string, see [recipients.Parse].
	Recipients string
	// RequireDelivery leaves an item unrecorded when every send failed.
	RequireDelivery bool
	// Parallel is how many sends of one item may run at once.
	Parallel int
	// Dry logs what would be sent without authenticating, sending or
	// recording anything.
	Dry bool
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Ledger        Ledger
	Fetcher       Fetcher
	Authenticator Authenticator
	// Filter is optional.
	Filter Filter
	Logger *slog.Logger
	// Now acts as time.Now, but can be mocked for testing.
	Now func() time.Time
}

// Engine runs dispatches.
type Engine struct {
	cfg  Config
	deps Deps
}

// New returns a new Engine.
func New(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Run performs one run. Problems that stop the run are reported in the
// outcome's Status and Err, everything else in its failures and diagnostics.
func (e *Engine) Run(ctx context.Context) *Outcome {
	o := &Outcome{Started: e.deps.Now()}
	e.run(ctx, o)
	o.Duration = e.deps.Now().Sub(o.Started)
	return o
}

func (e *Engine) run(ctx context.Context, o *Outcome) {
	log := e.deps.Logger

	rs, err := recipients.Parse(e.cfg.Recipients)
	if err != nil {
		for _, err := range unwrapJoined(err) {
			o.diagnose("recipients", "", err)
		}
	}
	if len(rs) == 0 {
		o.Status = StatusNoRecipients
		o.Err = ErrNoRecipients
		return
	}

	var s sender.Sender
	if !e.cfg.Dry {
		s, err = e.deps.Authenticator.Authenticate(ctx)
		if err != nil {
			o.Status = StatusAuthFailure
			o.Err = fmt.Errorf("%w: %w", ErrAuth, err)
			return
		}
	}

	items, err := e.deps.Fetcher.Fetch(ctx, e.cfg.FeedURL)
	if err != nil {
		o.Status = StatusFeedFetchFailure
		o.Err = fmt.Errorf("%w: %w", ErrFeedFetch, err)
		return
	}
	o.Seen = len(items)
	log.Debug("fetched feed", "feed", e.cfg.FeedURL, "items", len(items))

	if err := e.deps.Ledger.Load(ctx); err != nil {
		o.diagnose("ledger", "", fmt.Errorf("%w: %w", ErrLedgerRead, err))
	}

	from := sender.Address{Name: e.cfg.FromName, Address: e.cfg.FromAddress}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			o.diagnose("dispatch", item.Identity, fmt.Errorf("run interrupted: %w", err))
			break
		}
		if !e.process(ctx, o, s, from, rs, item) {
			break
		}
	}
	o.Status = StatusCompleted
}

// process handles a single item. It returns false if the run should stop.
func (e *Engine) process(ctx context.Context, o *Outcome, s sender.Sender, from sender.Address, rs []recipients.Recipient, item feed.Item) bool {
	log := e.deps.Logger

	if item.Identity == "" {
		o.Skipped++
		o.diagnose("feed", "", fmt.Errorf("item %q has neither GUID nor link, skipping", item.Title))
		return true
	}

	if Delivered(e.deps.Ledger, item) {
		log.Debug("already delivered", "item", item.Identity)
		return true
	}

	if e.deps.Filter != nil {
		keep, err := e.deps.Filter.Keep(item)
		if err != nil {
			o.diagnose("rules", item.Identity, err)
		}
		if !keep {
			o.Filtered++
			log.Debug("filtered out by rules", "item", item.Identity)
			return true
		}
	}

	o.New++
	body, err := renderBody(item)
	if err != nil {
		// The template is static, this only happens on a programming error.
		o.diagnose("dispatch", item.Identity, err)
		return true
	}

	if e.cfg.Dry {
		for _, r := range rs {
			log.Info("would send", "item", item.Identity, "to", r.Address, "subject", item.Subject())
		}
		return true
	}

	errs := e.sendAll(ctx, s, sender.Message{
		From:    from,
		Subject: item.Subject(),
		HTML:    body,
	}, rs)

	var succeeded int
	for i, err := range errs {
		o.Attempted++
		if err != nil {
			o.Failed++
			o.Failures = append(o.Failures, Failure{
				Identity:  item.Identity,
				Recipient: rs[i].Address,
				Err:       fmt.Errorf("%w: %w", ErrSend, err),
			})
			log.Warn("failed to send", "item", item.Identity, "to", rs[i].Address, "error", err)
			continue
		}
		o.Succeeded++
		succeeded++
	}

	if err := ctx.Err(); err != nil {
		o.Unrecorded++
		o.diagnose("dispatch", item.Identity, fmt.Errorf("run interrupted, item not recorded: %w", err))
		return false
	}
	if succeeded == 0 && e.cfg.RequireDelivery {
		o.Unrecorded++
		o.diagnose("ledger", item.Identity, fmt.Errorf("every send failed, leaving item for the next run"))
		return true
	}
	if err := e.deps.Ledger.Record(ctx, item.Identity); err != nil {
		o.LedgerFailures++
		o.diagnose("ledger", item.Identity, fmt.Errorf("%w: %w", ErrLedgerWrite, err))
	}
	return true
}

// Delivered reports whether l has the item, either by identity or, for
// ledgers that were keyed on links, by link.
func Delivered(l Ledger, item feed.Item) bool {
	if l.Contains(item.Identity) {
		return true
	}
	return item.Link != "" && item.Link != item.Identity && l.Contains(item.Link)
}

// sendAll sends msg to every recipient and returns the errors in recipient
// order. It returns only after all sends are done.
func (e *Engine) sendAll(ctx context.Context, s sender.Sender, msg sender.Message, rs []recipients.Recipient) []error {
	errs := make([]error, len(rs))
	send := func(i int) {
		m := msg
		m.To = sender.Address(rs[i])
		errs[i] = s.Send(ctx, m)
	}

	if e.cfg.Parallel <= 1 {
		for i := range rs {
			send(i)
		}
		return errs
	}

	lwg := syncx.NewLimitedWaitGroup(e.cfg.Parallel)
	for i := range rs {
		lwg.Go(func() { send(i) })
	}
	lwg.Wait()
	return errs
}

func renderBody(item feed.Item) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, struct {
		Summary template.HTML
		Link    string
	}{
		// Feeds ship HTML summaries and the mail is HTML too.
		Summary: template.HTML(item.Summary),
		Link:    item.ReadMore(),
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
