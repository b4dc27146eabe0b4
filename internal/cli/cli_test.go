package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "[storage]\ndriver = \"sqlite\"\nsqlite_path = \"" + filepath.ToSlash(filepath.Join(dir, "trail.db")) + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"handle", "dumpmsgs", "loadmsgs", "migrate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestHandle(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "-c", cfg, "handle", "--ident", "256700000000", "+echo", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "--> +echo hello\n")
	assert.Contains(t, out, "    1/1 cli://256700000000\n")
	assert.Contains(t, out, "    <-- hello\n")
}

func TestLoadThenDump(t *testing.T) {
	cfg := writeConfig(t)
	dump := filepath.Join(t.TempDir(), "msgs.yaml")
	require.NoError(t, os.WriteFile(dump, []byte(`
- uri: test://test
  time: "2010-05-01T12:34:40+02:00"
  text: +ping
- uri: test://other
  time: null
  text: Test
`), 0o600))

	out, err := run(t, "-c", cfg, "loadmsgs", dump)
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 2010-05-01T")
	assert.Contains(t, out, "    <-- pong\n")

	out, err = run(t, "-c", cfg, "dumpmsgs")
	require.NoError(t, err)
	var msgs []DumpedMessage
	require.NoError(t, yaml.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "test://other", msgs[0].URI)
	assert.Equal(t, "Test", msgs[0].Text)
	require.NotNil(t, msgs[0].Time)
	assert.Equal(t, "test://test", msgs[1].URI)
	require.NotNil(t, msgs[1].Time)
	at, err := time.Parse(time.RFC3339Nano, *msgs[1].Time)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2010, 5, 1, 10, 34, 40, 0, time.UTC)))
}

func TestLoadRejectsBadURI(t *testing.T) {
	cfg := writeConfig(t)
	dump := filepath.Join(t.TempDir(), "msgs.yaml")
	require.NoError(t, os.WriteFile(dump, []byte("- uri: nope\n  text: hi\n"), 0o600))
	_, err := run(t, "-c", cfg, "loadmsgs", dump)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad uri")
}

func TestMigrateNeedsPostgres(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "-c", cfg, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}
