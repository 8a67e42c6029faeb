// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// A Notifier is told about work that failed for good.
type Notifier interface {
	Notify(ctx context.Context, name string, err error) error
}

// LogNotifier logs failures.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, name string, err error) error {
	log.Error.Printf("%s failed: %v", name, err)
	return nil
}

// MailNotifier mails failures to a fixed set of addresses through an
// SMTP relay.
type MailNotifier struct {
	// Addr is the address (host:port) of the SMTP relay.
	Addr string
	// Auth, if not nil, authenticates with the relay.
	Auth smtp.Auth
	From string
	To   []string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Notify implements Notifier.
func (m *MailNotifier) Notify(ctx context.Context, name string, err error) error {
	if len(m.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if serr := send(m.Addr, m.Auth, m.From, m.To, m.message(name, err)); serr != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("notify: mail %s", m.Addr), serr)
	}
	return nil
}

func (m *MailNotifier) message(name string, err error) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: maskpipe: %s failed\r\n", name)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "%s failed: %v\r\n", name, err)
	return b.Bytes()
}
