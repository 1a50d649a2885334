package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browtool/pkg/errors"
)

func TestExtractParams(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "unique first-seen order",
			text: "{{b}} {{a}} {{b}}",
			want: []string{"b", "a"},
		},
		{
			name: "no placeholders",
			text: "page.goto('https://example.com')",
			want: nil,
		},
		{
			name: "interior whitespace tolerated",
			text: "{{ city }} and {{zip }}",
			want: []string{"city", "zip"},
		},
		{
			name: "underscore and digits",
			text: "{{_private}} {{item2}}",
			want: []string{"_private", "item2"},
		},
		{
			name: "invalid identifiers ignored",
			text: "{{2bad}} {{with-dash}} {{ok}}",
			want: []string{"ok"},
		},
		{
			name: "single braces ignored",
			text: "{not_one} {{real}}",
			want: []string{"real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractParams(tt.text))
		})
	}
}

func TestRender(t *testing.T) {
	out, err := Render("page.fill('#q', '{{query}}')", map[string]any{"query": "steam deck"})
	require.NoError(t, err)
	assert.Equal(t, "page.fill('#q', 'steam deck')", out)
}

func TestRenderAllPlaceholdersResolved(t *testing.T) {
	text := "goto('{{url}}'); fill('{{user}}'); fill('{{user}}'); wait({{ms}})"
	args := map[string]any{"url": "https://example.com", "user": "kay", "ms": 250}

	out, err := Render(text, args)
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "{{"), "no placeholder markers may remain: %q", out)
	assert.Equal(t, "goto('https://example.com'); fill('kay'); fill('kay'); wait(250)", out)
}

func TestRenderMissingArgument(t *testing.T) {
	_, err := Render("{{present}} {{absent}}", map[string]any{"present": "x"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingArgument))
	assert.Equal(t, "absent", errors.Param(err))
}

func TestRenderNilValueIsEmpty(t *testing.T) {
	out, err := Render("a{{v}}b", map[string]any{"v": nil})
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestRenderNoRecursiveExpansion(t *testing.T) {
	// A value containing placeholder syntax must be emitted verbatim,
	// not expanded again.
	out, err := Render("{{a}}", map[string]any{"a": "{{b}}", "b": "boom"})
	require.NoError(t, err)
	assert.Equal(t, "{{b}}", out)
}

func TestRenderDeterministic(t *testing.T) {
	text := "{{x}}-{{y}}-{{x}}"
	args := map[string]any{"x": 1, "y": true}

	first, err := Render(text, args)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Render(text, args)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRenderNonStringValues(t *testing.T) {
	out, err := Render("n={{n}} b={{b}}", map[string]any{"n": 42, "b": false})
	require.NoError(t, err)
	assert.Equal(t, "n=42 b=false", out)
}
