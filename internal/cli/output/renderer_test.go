package output

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTestRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"text", ModeText},
		{"TEXT", ModeText},
		{"markdown", ModeMarkdown},
		{"md", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto on tty", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"empty piped", "", false, ModeMarkdown},
		{"explicit text piped", ModeText, false, ModeText},
		{"json on tty", ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
			assert.Equal(t, tt.isTTY, r.IsTTY())
		})
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_MarkdownHasNoANSI(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeMarkdown, false)

	r.Header(1, "Modules")
	r.KeyValue("Count", "3")
	r.Success("done")
	r.Warning("careful")
	r.Error("broken")
	r.StatusLine("a.json", "success", "(18 modules)")
	r.Table([]string{"Name", "Kind"}, [][]string{{"A", "class"}})

	got := out.String() + errOut.String()
	assert.False(t, ansiPattern.MatchString(got), "unexpected ANSI codes in %q", got)
	assert.Contains(t, out.String(), "# Modules\n")
	assert.Contains(t, out.String(), "- **Count:** 3\n")
	assert.Contains(t, out.String(), "- success: a.json (18 modules)\n")
	assert.Contains(t, out.String(), "| A ")
	assert.Contains(t, errOut.String(), "careful")
	assert.Contains(t, errOut.String(), "broken")
}

func TestRenderer_TextOnTTYIsStyled(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	r, out, _ := newTestRenderer(ModeText, true)

	r.Header(1, "Modules")
	r.Success("done")

	assert.True(t, ansiPattern.MatchString(out.String()), "expected ANSI codes in %q", out.String())
	assert.Contains(t, out.String(), "Modules")
	assert.Contains(t, out.String(), "✓")
}

func TestRenderer_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	r, out, _ := newTestRenderer(ModeText, true)

	r.Header(1, "Modules")
	assert.Equal(t, "Modules\n", out.String())
}

func TestRenderer_TextTable(t *testing.T) {
	r, out, _ := newTestRenderer(ModeText, false)
	r.Table([]string{"Name", "Kind"}, [][]string{{"A::B", "class"}, {"Kernel", "module"}})

	got := out.String()
	assert.Contains(t, got, "┌")
	assert.Contains(t, got, "A::B")
	assert.Contains(t, got, "Kernel")
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"modules": 3}))
	assert.JSONEq(t, `{"modules": 3}`, out.String())
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "## Title", FormatHeader(2, "Title"))
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "- **Key:** value", FormatKeyValue("Key", "value"))
	assert.Equal(t, "```python\nx = 1\n```", FormatCodeBlock("python", "x = 1\n"))
	assert.Equal(t, "- a\n- b", FormatList([]string{"a", "b"}))
	assert.Equal(t, "", FormatList(nil))
	assert.Equal(t, "`A::B`", Code("A::B"))
}
