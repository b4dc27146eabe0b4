package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, DefaultPGPort, cfg.Postgres.Port)
	assert.False(t, cfg.Debug)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
debug = true

[storage]
driver = "SQLite"
sqlite_path = "/tmp/x.db"

[[routes]]
keyword = "register|reg"
handler = "forms.Register"

[[routes]]
pattern = '^(?P<text>.*)$'
handler = "forms.Input"

[transports."http+sms"]
kind = "http"
send_url = "http://gw/send"

[transports.gsm]
kind = "poller"
max_attempts = 3
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, "register|reg", cfg.Routes[0].Keyword)
	assert.Equal(t, "forms.Input", cfg.Routes[1].Handler)

	httpCfg := cfg.Transports["http+sms"]
	assert.Equal(t, KindHTTP, httpCfg.Kind)
	assert.Equal(t, DefaultHTTPTimeoutSec, httpCfg.TimeoutSeconds)
	assert.Equal(t, 1, httpCfg.RetryMax)

	gsm := cfg.Transports["gsm"]
	assert.Equal(t, 3, gsm.MaxAttempts)
	assert.Equal(t, DefaultPollTicks, gsm.PollTicks)
	assert.Equal(t, DefaultAckTimeoutMs, gsm.AckTimeoutMs)
	assert.Equal(t, DefaultMinIdentLength, gsm.MinIdentLength)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	_, err := Parse(`
[transports.x]
kind = "carrier-pigeon"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport x")
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	_, err := Parse(`
[storage]
driver = "mongo"
`)
	require.Error(t, err)
}

func TestNormalizeRequiresKind(t *testing.T) {
	_, err := TransportConfig{}.Normalize()
	require.Error(t, err)
}
