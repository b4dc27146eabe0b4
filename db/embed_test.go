package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)

	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
