package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	assert.Equal(t, "v1", Info{Version: "v1"}.String())
	assert.Equal(t, "v1 (0123456)", Info{Version: "v1", Revision: "0123456789"}.String())
	assert.Equal(t, "v1 (abc*)", Info{Version: "v1", Revision: "abc", Modified: true}.String())
}

func TestGetInfoStartsWithVersion(t *testing.T) {
	assert.Contains(t, GetInfo(), Version)
}
