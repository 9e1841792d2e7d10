package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sk "github.com/panyam/secretkeeper"
	"github.com/panyam/secretkeeper/stores/fs"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClientCommands(t *testing.T) {
	app := sk.NewApp(fs.NewFSAccountStore(t.TempDir()))
	app.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	app.Directory.Hasher = &sk.PBKDF2Hasher{Iterations: 1000, KeyLength: 32, SaltLength: 16}
	app.Directory.Logger = app.Logger
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	common := []string{"--server", server.URL, "--sessions", filepath.Join(t.TempDir(), "sessions.json")}
	with := func(args ...string) []string { return append(args, common...) }

	out, err := runCLI(t, "pw1\n", with("register", "alice")...)
	require.NoError(t, err)
	assert.Contains(t, out, "as alice")

	out, err = runCLI(t, "", with("secrets", "add", "hello", "world")...)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = runCLI(t, "", with("secrets", "list")...)
	require.NoError(t, err)
	assert.Equal(t, id+"\thello world\n", out)

	_, err = runCLI(t, "", with("secrets", "edit", id, "changed")...)
	require.NoError(t, err)
	out, _ = runCLI(t, "", with("secrets", "list")...)
	assert.Contains(t, out, "changed")

	_, err = runCLI(t, "", with("secrets", "rm", id)...)
	require.NoError(t, err)
	out, _ = runCLI(t, "", with("secrets", "list")...)
	assert.Empty(t, out)

	_, err = runCLI(t, "", with("logout")...)
	require.NoError(t, err)
	_, err = runCLI(t, "", with("secrets", "list")...)
	assert.Error(t, err)

	_, err = runCLI(t, "", with("login", "alice", "-p", "wrong")...)
	assert.Error(t, err)
	_, err = runCLI(t, "", with("login", "alice", "-p", "pw1")...)
	assert.NoError(t, err)
}

func TestReadPassword(t *testing.T) {
	var prompt bytes.Buffer
	t.Setenv("SECRETKEEPER_PASSWORD", "")
	pw, err := readPassword("flag", strings.NewReader("stdin\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "flag", pw)

	pw, err = readPassword("", strings.NewReader("from-stdin\r\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", pw)

	t.Setenv("SECRETKEEPER_PASSWORD", "from-env")
	pw, _ = readPassword("", strings.NewReader(""), &prompt)
	assert.Equal(t, "from-env", pw)

	t.Setenv("SECRETKEEPER_PASSWORD", "")
	_, err = readPassword("", strings.NewReader(""), &prompt)
	assert.Error(t, err)
	assert.Empty(t, prompt.String(), "only a terminal is prompted")
}

func TestReadPasswordFromPipe(t *testing.T) {
	t.Setenv("SECRETKEEPER_PASSWORD", "")
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("piped-secret\nignored\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var prompt bytes.Buffer
	pw, err := readPassword("", r, &prompt)
	require.NoError(t, err)
	assert.Equal(t, "piped-secret", pw)
	assert.Empty(t, prompt.String(), "a pipe is not a terminal")
}
