// ABOUTME: Tests for HTML and terminal rendering of repaired answers

package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML_RepairsBrokenTable(t *testing.T) {
	html, err := RenderHTML("| Col1\n| Col2\n|-----\n| v1\n| v2")
	require.NoError(t, err)

	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<th>Col1</th>")
	assert.Contains(t, html, "<td>v2</td>")
}

func TestRenderHTML_OmitsRawHTML(t *testing.T) {
	html, err := RenderHTML("hola <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestTerminalRenderer(t *testing.T) {
	r, err := NewTerminalRenderer("notty", 80)
	require.NoError(t, err)

	out, err := r.Render("Precios: | Plan | Precio | Meses | --- | --- | --- | Base | 10 | 12 |")
	require.NoError(t, err)
	for _, want := range []string{"Precios:", "Plan", "Base", "12"} {
		assert.Contains(t, out, want)
	}
}
