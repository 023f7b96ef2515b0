// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package sender defines a transport-agnostic email delivery interface.
package sender

import (
	"context"
	"net/mail"
)

// Sender delivers messages to a single recipient each.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Address is a mailbox with an optional display name.
type Address struct {
	Name    string
	Address string
}

// String formats a as an RFC 5322 address.
func (a Address) String() string {
	return (&mail.Address{Name: a.Name, Address: a.Address}).String()
}

// Message is an outgoing HTML email.
type Message struct {
	From    Address
	To      Address
	Subject string
	HTML    string
}
