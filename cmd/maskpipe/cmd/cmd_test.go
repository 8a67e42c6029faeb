// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd_test

import (
	"bytes"
	"context"
	"database/sql"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/cmd/maskpipe/cmd"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir  string
	opts cmd.Options
}

// setup creates a source database holding two shipments and a
// configuration that reads it.
func setup(t *testing.T, extra string) (*env, func()) {
	dir, cleanup := testutil.TempDir(t, "", "maskpipe")
	db, err := sql.Open("sqlite", filepath.Join(dir, "src.db"))
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE logistik (customer_id TEXT, customer_name TEXT, customer_location TEXT, weight REAL)`,
		`INSERT INTO logistik VALUES ('C007', 'Budi Santoso', 'Jakarta', 12.5)`,
		`INSERT INTO logistik VALUES ('C012', 'Siti Aminah', 'Surabaya', 3.25)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	config := `
source: {driver: sqlite, path: ` + filepath.Join(dir, "src.db") + `, table: logistik}
sink: {driver: sqlite, path: ` + filepath.Join(dir, "dst.db") + `, table: masked_logistik}
store: {root: ` + filepath.Join(dir, "batches") + `}
retry: {retries: 0}
` + extra
	path := filepath.Join(dir, "maskpipe.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(config), 0600))
	return &env{dir: dir, opts: cmd.Options{Config: path}}, cleanup
}

func artifacts(dir string) string {
	return "artifacts: {cipher_dir: " + filepath.Join(dir, "export") + ", key_dir: " + filepath.Join(dir, "keys")
}

func TestPipeline(t *testing.T) {
	e, cleanup := setup(t, "")
	defer cleanup()
	// Artifact directories depend on the temporary directory.
	config, err := ioutil.ReadFile(e.opts.Config)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(e.opts.Config, append(config, []byte(artifacts(e.dir)+"}\n")...), 0600))

	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, cmd.Pipeline(ctx, e.opts, &out, []string{"-run", "2023-12-01"}))
	assert.Contains(t, out.String(), "2023-12-01\tsucceeded\n")
	assert.Contains(t, out.String(), "2023-12-01 encrypt: 2 records")

	db, err := sql.Open("sqlite", filepath.Join(e.dir, "dst.db"))
	require.NoError(t, err)
	defer db.Close()
	var name, location string
	var weight float64
	require.NoError(t, db.QueryRow(`SELECT customer_name, customer_location, weight FROM masked_logistik WHERE customer_id = 'C00*'`).
		Scan(&name, &location, &weight))
	assert.Equal(t, "Bud* San****", name)
	assert.Equal(t, "Jak****", location)
	assert.Equal(t, 12.5, weight)

	out.Reset()
	require.NoError(t, cmd.Ls(ctx, e.opts, &out, nil))
	assert.Equal(t, "2023-12-01/masked\n2023-12-01/raw\n", out.String())
	out.Reset()
	require.NoError(t, cmd.Ls(ctx, e.opts, &out, []string{"*/masked"}))
	assert.Equal(t, "2023-12-01/masked\n", out.String())

	out.Reset()
	require.NoError(t, cmd.Decrypt(ctx, cmd.Options{}, &out, []string{
		"-key", filepath.Join(e.dir, "keys", "2023-12-01.key"),
		filepath.Join(e.dir, "export", "2023-12-01.cipher"),
	}))
	assert.Equal(t,
		"customer_id:string\tcustomer_name:string\tcustomer_location:string\tweight:float\n"+
			"C00*\tBud* San****\tJak****\t12.5\n"+
			"C01*\tSit* Ami***\tSur*****\t3.25\n",
		out.String())
}

func TestStage(t *testing.T) {
	e, cleanup := setup(t, "")
	defer cleanup()
	config, err := ioutil.ReadFile(e.opts.Config)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(e.opts.Config, append(config, []byte(artifacts(e.dir)+"}\n")...), 0600))

	ctx := context.Background()
	var out bytes.Buffer
	err = cmd.Stage(ctx, e.opts, &out, []string{"-run", "2023-12-01", "mask"})
	assert.True(t, errors.Is(errors.NotExist, err))
	assert.Contains(t, out.String(), "failed")

	for _, name := range []string{"extract", "mask"} {
		out.Reset()
		require.NoError(t, cmd.Stage(ctx, e.opts, &out, []string{"-run", "2023-12-01", name}))
		assert.Equal(t, "2023-12-01 "+name+": 2 records", strings.Split(out.String(), " in ")[0])
	}
	err = cmd.Stage(ctx, e.opts, &out, []string{"-run", "2023-12-01", "transform"})
	assert.True(t, errors.Is(errors.Invalid, err))
	err = cmd.Stage(ctx, e.opts, &out, []string{"-run", "a/b", "mask"})
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestSealedDecrypt(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	e, cleanup := setup(t, "")
	defer cleanup()
	config, err := ioutil.ReadFile(e.opts.Config)
	require.NoError(t, err)
	extra := artifacts(e.dir) + ", key_recipients: [" + identity.Recipient().String() + "]}\n"
	require.NoError(t, ioutil.WriteFile(e.opts.Config, append(config, []byte(extra)...), 0600))
	identityPath := filepath.Join(e.dir, "identity.txt")
	require.NoError(t, ioutil.WriteFile(identityPath, []byte(identity.String()+"\n"), 0600))

	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, cmd.Pipeline(ctx, e.opts, &out, []string{"-run", "2023-12-01"}))

	args := []string{
		"-key", filepath.Join(e.dir, "keys", "2023-12-01.key"),
		filepath.Join(e.dir, "export", "2023-12-01.cipher"),
	}
	out.Reset()
	err = cmd.Decrypt(ctx, cmd.Options{}, &out, args)
	assert.True(t, errors.Is(errors.Precondition, err))
	require.NoError(t, cmd.Decrypt(ctx, cmd.Options{}, &out, append([]string{"-identity", identityPath}, args...)))
	assert.Contains(t, out.String(), "C00*\tBud* San****\tJak****\t12.5\n")
}

func TestUnreachableSink(t *testing.T) {
	e, cleanup := setup(t, "")
	defer cleanup()
	config, err := ioutil.ReadFile(e.opts.Config)
	require.NoError(t, err)
	// The sink database lives in a directory that does not exist.
	config = bytes.Replace(config, []byte(filepath.Join(e.dir, "dst.db")), []byte(filepath.Join(e.dir, "missing", "dst.db")), 1)
	config = append(config, []byte(artifacts(e.dir)+"}\n")...)
	require.NoError(t, ioutil.WriteFile(e.opts.Config, config, 0600))

	ctx := context.Background()
	var out bytes.Buffer
	err = cmd.Pipeline(ctx, e.opts, &out, []string{"-run", "2023-12-01"})
	assert.True(t, errors.Is(errors.Unavailable, err))
	assert.Contains(t, out.String(), "2023-12-01\tfailed\n")
	assert.NotContains(t, out.String(), "encrypt")

	out.Reset()
	require.NoError(t, cmd.Ls(ctx, e.opts, &out, []string{"*/masked"}))
	assert.Equal(t, "2023-12-01/masked\n", out.String())
}

func TestConfigErrors(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	err := cmd.Pipeline(ctx, cmd.Options{}, &out, nil)
	assert.True(t, errors.Is(errors.Precondition, err))

	e, cleanup := setup(t, "")
	defer cleanup()
	// No artifact directories are configured.
	err = cmd.Ls(ctx, e.opts, &out, nil)
	assert.True(t, errors.Is(errors.Precondition, err))

	err = cmd.Decrypt(ctx, cmd.Options{}, &out, []string{"cipher"})
	assert.True(t, errors.Is(errors.Invalid, err))
	assert.Error(t, cmd.Run(ctx, cmd.Options{}, []string{"bogus"}))
}
