package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browtool/pkg/storage"
)

func TestParseGlobalFlags(t *testing.T) {
	t.Cleanup(func() {
		configPath = ""
		quietMode = false
	})

	rest := parseGlobalFlags([]string{"--config", "/tmp/cfg.yaml", "--quiet", "run", "greet"})
	assert.Equal(t, []string{"run", "greet"}, rest)
	assert.Equal(t, "/tmp/cfg.yaml", configPath)
	assert.True(t, quietMode)
}

func TestDispatchUnknownCommand(t *testing.T) {
	handled, code := dispatchSubcommand([]string{"frobnicate"})
	assert.True(t, handled)
	assert.Equal(t, 2, code)
}

func TestDispatchVersion(t *testing.T) {
	handled, code := dispatchSubcommand([]string{"version"})
	assert.True(t, handled)
	assert.Equal(t, 0, code)
}

func TestArgListSet(t *testing.T) {
	args := argList{}
	require.NoError(t, args.Set("url=https://example.com"))
	require.NoError(t, args.Set("query=a=b"))
	assert.Equal(t, "https://example.com", args["url"])
	assert.Equal(t, "a=b", args["query"])

	assert.Error(t, args.Set("novalue"))
	assert.Error(t, args.Set("=orphan"))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		splitOrigins("https://a.example, https://b.example,"))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, exitCodeForError(nil))
	assert.Equal(t, 1, exitCodeForError(assert.AnError))
	assert.Equal(t, 7, exitCodeForError(withExitCode(assert.AnError, 7)))
	assert.Equal(t, 1, exitCodeForError(withExitCode(assert.AnError, 0)))
	assert.Nil(t, withExitCode(nil, 7))
	assert.Equal(t, 3, exitCodeForError(exitError{code: 3}))
}

func TestToolsCommandsAgainstTempDB(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "tools.db")

	store, err := storage.New(dbPath)
	require.NoError(t, err)
	_, err = store.CreateTool("greet", "says hi", "echo hi {{name}}")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, runToolsCommand([]string{"list", "--db", dbPath}))
	require.NoError(t, runToolsShow([]string{"--db", dbPath, "greet"}))
	require.NoError(t, runToolsRename([]string{"--db", dbPath, "greet", "hello"}))
	require.NoError(t, runToolsRemove([]string{"--db", dbPath, "hello"}))

	err = runToolsShow([]string{"--db", dbPath, "hello"})
	require.Error(t, err)
}

func TestDBPathCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, runDBPath([]string{"--db", filepath.Join(t.TempDir(), "x.db")}))
}

func TestRunUsage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	err := runRunCommand([]string{})
	require.Error(t, err)
	assert.Equal(t, 2, exitCodeForError(err))
}
