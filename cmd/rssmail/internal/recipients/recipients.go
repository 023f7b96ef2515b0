// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package recipients parses the list of people who receive feed items.
//
// The list is a single string of name:address pairs separated by
// semicolons:
//
//	Alice:alice@example.com;Bob:bob@example.com;:ops@example.com
package recipients

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Recipient is a single destination mailbox.
type Recipient struct {
	Name    string
	Address string
}

// String formats r as an RFC 5322 address.
func (r Recipient) String() string {
	return (&mail.Address{Name: r.Name, Address: r.Address}).String()
}

// ConfigError describes a segment of the recipients string that could not be
// parsed.
type ConfigError struct {
	Segment string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("malformed recipient %q: %s", e.Segment, e.Reason)
}

// Parse parses config into recipients in the order they appear. Empty
// segments are ignored. Malformed segments are skipped and reported in the
// returned error, which joins one [*ConfigError] per segment; recipients from
// the good segments are returned regardless.
//
// Addresses are not validated beyond being present, so a bad address fails
// only its own deliveries.
func Parse(config string) ([]Recipient, error) {
	var (
		rs   []Recipient
		errs []error
	)
	for seg := range strings.SplitSeq(config, ";") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		name, addr, ok := strings.Cut(seg, ":")
		if !ok {
			errs = append(errs, &ConfigError{Segment: seg, Reason: "missing ':' between name and address"})
			continue
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			errs = append(errs, &ConfigError{Segment: seg, Reason: "empty address"})
			continue
		}
		rs = append(rs, Recipient{Name: strings.TrimSpace(name), Address: addr})
	}
	return rs, errors.Join(errs...)
}

// Legacy builds a recipients string from the single-recipient settings used
// by older configurations. It returns an empty string if address is empty.
func Legacy(name, address string) string {
	if strings.TrimSpace(address) == "" {
		return ""
	}
	return name + ":" + address
}
