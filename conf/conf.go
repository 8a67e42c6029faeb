// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package conf defines the maskpipe configuration file and builds the
// pipeline components it describes. Configuration is YAML:
//
//	source:
//	  driver: postgres
//	  host: 127.0.0.1
//	  port: 5432
//	  database: postgres
//	  user: postgres
//	  password_env: PGPASSWORD
//	  table: logistik
//	sink:
//	  driver: postgres
//	  host: 127.0.0.1
//	  database: pentaho_db
//	  user: postgres
//	  password_env: PGPASSWORD
//	  table: masked_logistik
//	store:
//	  root: s3://bucket/maskpipe/batches
//	artifacts:
//	  cipher_dir: /var/lib/maskpipe/export
//	  key_dir: /var/lib/maskpipe/keys
//	retry:
//	  retries: 1
//	  delay: 5m
//
// Passwords are never stored in the file itself; password_env names
// the environment variable that holds them.
//
// All configuration errors are reported with kind errors.Precondition
// and severity errors.Fatal.
package conf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"gopkg.in/yaml.v3"
)

// Config is the maskpipe configuration.
type Config struct {
	// Source is the table records are extracted from.
	Source DB `yaml:"source"`
	// Sink is the table masked records are loaded into.
	Sink DB `yaml:"sink"`
	// Store configures the batch store.
	Store Store `yaml:"store"`
	// Artifacts configures encrypted export.
	Artifacts Artifacts `yaml:"artifacts"`
	// Mask configures the masking rules.
	Mask Mask `yaml:"mask"`
	// Retry configures how failed stages are retried.
	Retry Retry `yaml:"retry"`
	// Notify configures failure notification.
	Notify Notify `yaml:"notify"`
	// Parallelism bounds the number of runs executed concurrently.
	// Zero means no bound.
	Parallelism int `yaml:"parallelism"`
}

// DB describes a database table.
type DB struct {
	// Driver is the database kind: "postgres" or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
	// SSLMode is the postgres sslmode connection parameter.
	SSLMode string `yaml:"sslmode"`
	// Path is the database file of a sqlite database.
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// Store configures the batch store.
type Store struct {
	// Root is the directory or s3:// prefix under which batches are
	// stored.
	Root string `yaml:"root"`
}

// Artifacts configures where encrypted exports are written.
type Artifacts struct {
	CipherDir string `yaml:"cipher_dir"`
	KeyDir    string `yaml:"key_dir"`
	// KeyRecipients are age X25519 recipients to which key artifacts
	// are sealed. If empty, raw keys are written.
	KeyRecipients []string `yaml:"key_recipients"`
}

// Mask configures masking.
type Mask struct {
	Keep int    `yaml:"keep"`
	Char string `yaml:"char"`
	// Columns maps column names to rules ("identifier" or "name").
	Columns map[string]string `yaml:"columns"`
}

// Retry configures stage retries.
type Retry struct {
	Retries int           `yaml:"retries"`
	Delay   time.Duration `yaml:"delay"`
}

// Notify configures failure mail.
type Notify struct {
	Email    []string `yaml:"email"`
	SMTPAddr string   `yaml:"smtp_addr"`
	From     string   `yaml:"from"`
	// SMTPUser and SMTPPasswordEnv, if set, authenticate with the
	// relay using PLAIN authentication.
	SMTPUser        string `yaml:"smtp_user"`
	SMTPPasswordEnv string `yaml:"smtp_password_env"`
}

// Default returns the configuration that a configuration file is
// applied on top of. Unless a file names its own masked columns,
// customer_id and customer_location use the identifier rule and
// customer_name the name rule.
func Default() *Config {
	return &Config{
		Mask:  Mask{Keep: 3, Char: "*"},
		Retry: Retry{Retries: 1, Delay: 5 * time.Minute},
	}
}

// Load reads and validates the configuration file at path, which may
// be any path supported by github.com/grailbio/base/file.
func Load(ctx context.Context, path string) (*Config, error) {
	p, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Precondition, errors.Fatal, fmt.Sprintf("conf: read %s", path), err)
	}
	config, err := Parse(bytes.NewReader(p))
	if err != nil {
		return nil, errors.E(fmt.Sprintf("conf: %s", path), err)
	}
	return config, nil
}

// Parse decodes and validates a configuration. Unknown fields are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	config := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return nil, invalid("conf: decode", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Mask.Columns == nil {
		c.Mask.Columns = map[string]string{
			"customer_id":       "identifier",
			"customer_name":     "name",
			"customer_location": "identifier",
		}
	}
	for _, db := range []*DB{&c.Source, &c.Sink} {
		if db.Driver == "postgres" && db.Port == 0 {
			db.Port = 5432
		}
	}
}

// Validate checks the configuration, returning an error naming the
// first missing or invalid field.
func (c *Config) Validate() error {
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Sink.validate("sink"); err != nil {
		return err
	}
	if c.Store.Root == "" {
		return invalid("conf: store.root is required", nil)
	}
	if c.Artifacts.CipherDir == "" {
		return invalid("conf: artifacts.cipher_dir is required", nil)
	}
	if c.Artifacts.KeyDir == "" {
		return invalid("conf: artifacts.key_dir is required", nil)
	}
	if strings.TrimRight(c.Artifacts.CipherDir, "/") == strings.TrimRight(c.Artifacts.KeyDir, "/") {
		return invalid("conf: artifacts.cipher_dir and artifacts.key_dir must differ", nil)
	}
	if _, err := c.Artifacts.recipients(); err != nil {
		return err
	}
	if _, err := c.Mask.config(); err != nil {
		return err
	}
	if c.Retry.Retries < 0 {
		return invalid(fmt.Sprintf("conf: retry.retries must be nonnegative, got %d", c.Retry.Retries), nil)
	}
	if c.Retry.Delay < 0 {
		return invalid(fmt.Sprintf("conf: retry.delay must be nonnegative, got %s", c.Retry.Delay), nil)
	}
	if len(c.Notify.Email) > 0 {
		if c.Notify.SMTPAddr == "" {
			return invalid("conf: notify.smtp_addr is required when notify.email is set", nil)
		}
		if c.Notify.From == "" {
			return invalid("conf: notify.from is required when notify.email is set", nil)
		}
	}
	if c.Parallelism < 0 {
		return invalid(fmt.Sprintf("conf: parallelism must be nonnegative, got %d", c.Parallelism), nil)
	}
	return nil
}

func (d DB) validate(name string) error {
	switch d.Driver {
	case "":
		return invalid(fmt.Sprintf("conf: %s.driver is required", name), nil)
	case "postgres":
		for _, f := range []struct{ field, value string }{
			{"host", d.Host},
			{"database", d.Database},
			{"user", d.User},
		} {
			if f.value == "" {
				return invalid(fmt.Sprintf("conf: %s.%s is required", name, f.field), nil)
			}
		}
	case "sqlite":
		if d.Path == "" {
			return invalid(fmt.Sprintf("conf: %s.path is required", name), nil)
		}
	default:
		return invalid(fmt.Sprintf("conf: %s.driver: unknown driver %q", name, d.Driver), nil)
	}
	if d.Table == "" {
		return invalid(fmt.Sprintf("conf: %s.table is required", name), nil)
	}
	return nil
}

// invalid returns a configuration error.
func invalid(msg string, err error) error {
	if err == nil {
		return errors.E(errors.Precondition, errors.Fatal, msg)
	}
	return errors.E(errors.Precondition, errors.Fatal, msg, err)
}
