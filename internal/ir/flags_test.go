package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeFlagsRoundTrip(t *testing.T) {
	f, err := ParseAttributeFlags([]string{"required", " SYNTHETIC", "Builtin"})
	require.NoError(t, err)

	assert.True(t, f.Has(AttrRequired))
	assert.True(t, f.Has(AttrSynthetic|AttrBuiltin))
	assert.False(t, f.Has(AttrReadOnly))
	assert.Equal(t, "REQUIRED|BUILTIN|SYNTHETIC", f.String())
}

func TestAttributeFlagsUnknown(t *testing.T) {
	_, err := ParseAttributeFlags([]string{"REQUIRED", "SPARKLY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPARKLY")
}

func TestClassFlags(t *testing.T) {
	f, err := ParseClassFlags([]string{"final", "ABSTRACT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABSTRACT", "FINAL"}, f.Names())
	assert.False(t, f.Has(ClassBuiltin))

	_, err = ParseClassFlags([]string{"sealed"})
	assert.Error(t, err)

	var none ClassFlags
	assert.Equal(t, "", none.String())
}
