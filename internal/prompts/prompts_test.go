package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPrompts_AllEmbedded(t *testing.T) {
	all, err := GetPrompts()
	require.NoError(t, err)

	for _, name := range []string{Extract, Compress, Write, Translate} {
		assert.NotEmpty(t, all[name], name)
	}
}

func TestGetSinglePrompt_Placeholders(t *testing.T) {
	extract, err := GetSinglePrompt(Extract)
	require.NoError(t, err)
	assert.Contains(t, extract, "{topic}")
	assert.Contains(t, extract, "{language}")
	assert.Contains(t, extract, "{context}")

	write, err := GetSinglePrompt(Write)
	require.NoError(t, err)
	assert.Contains(t, write, "{genre}")
}

func TestGetSinglePrompt_Unknown(t *testing.T) {
	_, err := GetSinglePrompt("nope")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestSplitContextLine(t *testing.T) {
	extract, err := GetSinglePrompt(Extract)
	require.NoError(t, err)

	base, line := SplitContextLine(extract)
	assert.True(t, strings.HasPrefix(base, "Take notes"))
	assert.NotContains(t, base, ContextPlaceholder)
	assert.Equal(t, "Additional context about the text: {context}", line)

	translate, err := GetSinglePrompt(Translate)
	require.NoError(t, err)
	base, line = SplitContextLine(translate)
	assert.Equal(t, translate, base)
	assert.Empty(t, line)
}
