// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package conf

import (
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"os"
	"strconv"
	"unicode/utf8"

	"filippo.io/age"
	"github.com/grailbio/maskpipe/batchstore"
	"github.com/grailbio/maskpipe/mask"
	"github.com/grailbio/maskpipe/pipeline"
	"github.com/grailbio/maskpipe/sqlrecord"
	"github.com/grailbio/maskpipe/stage"
	"github.com/grailbio/maskpipe/vault"
)

// DSN returns the data source name of the database. Passwords are
// looked up in the environment when the DSN is built, so that they
// are not retained in the configuration.
func (d DB) DSN() (string, error) {
	switch d.Driver {
	case "sqlite":
		return d.Path, nil
	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Database,
		}
		if d.PasswordEnv != "" {
			password, ok := os.LookupEnv(d.PasswordEnv)
			if !ok {
				return "", invalid(fmt.Sprintf("conf: password variable %s is not set", d.PasswordEnv), nil)
			}
			u.User = url.UserPassword(d.User, password)
		} else {
			u.User = url.User(d.User)
		}
		if d.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
		}
		return u.String(), nil
	default:
		return "", invalid(fmt.Sprintf("conf: unknown driver %q", d.Driver), nil)
	}
}

// Conn returns the sqlrecord connection for the table.
func (d DB) Conn() (sqlrecord.Conn, error) {
	dialect, err := sqlrecord.LookupDialect(d.Driver)
	if err != nil {
		return sqlrecord.Conn{}, err
	}
	dsn, err := d.DSN()
	if err != nil {
		return sqlrecord.Conn{}, err
	}
	return sqlrecord.Conn{Dialect: dialect, DSN: dsn, Table: d.Table}, nil
}

func (a Artifacts) recipients() ([]age.Recipient, error) {
	if len(a.KeyRecipients) == 0 {
		return nil, nil
	}
	return vault.ParseRecipients(a.KeyRecipients)
}

func (m Mask) config() (mask.Config, error) {
	config := mask.Config{Keep: m.Keep, Columns: make(map[string]mask.Rule, len(m.Columns))}
	if m.Char != "" {
		if utf8.RuneCountInString(m.Char) != 1 {
			return mask.Config{}, invalid(fmt.Sprintf("conf: mask.char must be a single character, got %q", m.Char), nil)
		}
		config.Char, _ = utf8.DecodeRuneInString(m.Char)
	}
	for col, rule := range m.Columns {
		config.Columns[col] = mask.Rule(rule)
	}
	if config.Keep == 0 {
		config.Keep = mask.DefaultKeep
	}
	if config.Char == 0 {
		config.Char = mask.DefaultChar
	}
	if err := config.Validate(); err != nil {
		return mask.Config{}, invalid("conf: mask", err)
	}
	return config, nil
}

// Masker returns the configured masker.
func (c *Config) Masker() (*mask.Masker, error) {
	config, err := c.Mask.config()
	if err != nil {
		return nil, err
	}
	return mask.New(config)
}

// BatchStore returns the configured batch store.
func (c *Config) BatchStore() batchstore.Store {
	return batchstore.NewFileStore(c.Store.Root)
}

// Runner returns a stage runner for the configuration.
func (c *Config) Runner() (*stage.Runner, error) {
	source, err := c.Source.Conn()
	if err != nil {
		return nil, err
	}
	sink, err := c.Sink.Conn()
	if err != nil {
		return nil, err
	}
	masker, err := c.Masker()
	if err != nil {
		return nil, err
	}
	recipients, err := c.Artifacts.recipients()
	if err != nil {
		return nil, err
	}
	return &stage.Runner{
		Source: sqlrecord.NewSource(source),
		Sink:   sqlrecord.NewSink(sink),
		Store:  c.BatchStore(),
		Masker: masker,
		Artifacts: stage.Artifacts{
			CipherDir:  c.Artifacts.CipherDir,
			KeyDir:     c.Artifacts.KeyDir,
			Recipients: recipients,
		},
	}, nil
}

// Notifier returns the configured failure notifier: mail if
// recipients are configured, the log otherwise.
func (c *Config) Notifier() pipeline.Notifier {
	if len(c.Notify.Email) == 0 {
		return pipeline.LogNotifier{}
	}
	m := &pipeline.MailNotifier{
		Addr: c.Notify.SMTPAddr,
		From: c.Notify.From,
		To:   c.Notify.Email,
	}
	if c.Notify.SMTPUser != "" {
		host, _, err := net.SplitHostPort(c.Notify.SMTPAddr)
		if err != nil {
			host = c.Notify.SMTPAddr
		}
		m.Auth = smtp.PlainAuth("", c.Notify.SMTPUser, os.Getenv(c.Notify.SMTPPasswordEnv), host)
	}
	return m
}

// Pipeline returns the configured pipeline.
func (c *Config) Pipeline() (*pipeline.Pipeline, error) {
	runner, err := c.Runner()
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Runner: runner,
		Scheduler: &pipeline.RetryScheduler{
			Retries:  c.Retry.Retries,
			Delay:    c.Retry.Delay,
			Notifier: c.Notifier(),
		},
	}, nil
}
