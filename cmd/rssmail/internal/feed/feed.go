// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed fetches RSS and Atom feeds and turns their entries into items
// ready for dispatch.
package feed

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.astrophena.name/rssmail/internal/request"

	"github.com/mmcdole/gofeed"
)

// Item is a single feed entry.
type Item struct {
	// Identity is the stable key used to tell whether the item was already
	// sent: the GUID if present, else the primary link. Empty for malformed
	// items.
	Identity string
	Title    string
	Summary  string
	// Link is the "read more" target.
	Link       string
	Categories []string
}

// Subject returns the email subject for the item.
func (it Item) Subject() string { return cmp.Or(it.Title, it.Link, it.Identity) }

// ReadMore returns the link the email points to.
func (it Item) ReadMore() string { return cmp.Or(it.Link, it.Identity) }

// Fetcher downloads and parses feeds.
type Fetcher struct {
	// HTTPClient is used for requests. If nil, request.DefaultClient is used.
	HTTPClient *http.Client
}

// Fetch downloads the feed at url and returns its items in feed order.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	body, err := request.Make[request.Bytes](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        url,
		HTTPClient: f.HTTPClient,
		Headers: map[string]string{
			"Accept": "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
		},
	})
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", url, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, fi := range parsed.Items {
		items = append(items, fromGofeed(fi))
	}
	return items, nil
}

func fromGofeed(fi *gofeed.Item) Item {
	var firstLink string
	for _, l := range fi.Links {
		if l = strings.TrimSpace(l); l != "" {
			firstLink = l
			break
		}
	}
	link := cmp.Or(strings.TrimSpace(fi.Link), firstLink)
	var categories []string
	for _, c := range fi.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	return Item{
		Identity:   cmp.Or(strings.TrimSpace(fi.GUID), link),
		Title:      strings.TrimSpace(fi.Title),
		Summary:    strings.TrimSpace(fi.Description),
		Link:       link,
		Categories: categories,
	}
}
