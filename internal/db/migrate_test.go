package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/smsrouter/internal/config"
)

func TestRunMigrateRejectsUnknownCommand(t *testing.T) {
	err := RunMigrate(nil, config.PostgresConfig{Host: "localhost", Port: 5432}, nil, "sideways", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migrate command")
}

func TestRunMigrateForceNeedsVersion(t *testing.T) {
	err := RunMigrate(nil, config.PostgresConfig{}, nil, "force", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version number")
}
