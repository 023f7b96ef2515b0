// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Rssmail checks an RSS or Atom feed and emails new items through Gmail.

# Usage

	$ rssmail [flags...] <command>

Commands:

  - run: check the feed once and send every item that wasn't sent before.
  - auth: authorize rssmail to send email from your Gmail account.
  - seed: remember every item currently in the feed without sending it.
    Use it once for a new feed so the first run doesn't flood inboxes.
  - ledger: print the identities of items that were already sent.
  - ledger import <file>: copy a text ledger into the configured ledger.

rssmail is meant to be run periodically by a scheduler, such as a systemd
timer or cron. Only one run per state directory can be active at a time.

# Configuration

Every setting can be given as a flag, an environment variable or a line in
the dotenv file (-config, defaults to rssmail.env in the state directory), in
that order of precedence:

  - EMAIL_FROM_NAME (-from-name): sender display name.
  - EMAIL_FROM_ADDRESS (-from-address): sender address.
  - RSS_FEED_ADDRESS (-feed): URL of the feed.
  - EMAIL_RECIPIENTS (-recipients): recipients as Name:address pairs
    separated by semicolons, for example "Alice:alice@example.com;Bob:bob@example.com".
    The name may be empty. EMAIL_TO_NAME and EMAIL_TO_ADDRESS are accepted
    for a single recipient.
  - STATE_DIRECTORY (-state-dir): where files are kept. Defaults to
    $XDG_STATE_HOME/rssmail.
  - LEDGER_DRIVER (-ledger-driver): "text" (default) or "sqlite".
  - LEDGER_FILE (-ledger): the ledger. Defaults to URL_Log.txt, or ledger.db
    for SQLite.
  - ERROR_LOG (-error-log): the error log. Defaults to ErrorLog.txt.
  - CREDENTIALS_FILE (-credentials): OAuth client secrets downloaded from
    Google Cloud console. Defaults to credentials.json.
  - TOKEN_FILE (-token): OAuth token written by rssmail auth. Defaults to
    token.json.
  - RULES_FILE (-rules): optional Starlark rules, see below.
  - REQUIRE_DELIVERY (-require-delivery): don't remember an item when every
    send of it failed, so the next run tries again.
  - PARALLEL_SENDS (-parallel): how many recipients of one item are sent to
    at once. Defaults to 1.
  - SEND_RATE (-send-rate): maximum messages per second. 0 means unlimited.

Relative file names are resolved against the state directory.

# Delivery

An item is identified by its GUID, or by its link when it has no GUID. Once
an item was sent, its identity is appended to the ledger and the item is
never sent again, even if some recipients didn't get it. A recipient whose
send failed is listed in the summary and in the error log, but won't get
that item on a later run. Set REQUIRE_DELIVERY to retry items that reached
nobody.

# Rules

The rules file is written in Starlark and may define keep and block
functions that take an item and return a boolean:

	def keep(item):
	    return "go" in item.categories

	def block(item):
	    return item.title.startswith("Sponsored")

An item is sent when block returns False and keep returns True. Items
rejected by rules are not remembered, so changing the rules may let them
through later. The item is a struct with title, url, identity, summary and
categories fields.

# Files

Ledger, error log, credentials and token live in the state directory. The
ledger and error log are plain text files that are only ever appended to.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/rssmail/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
