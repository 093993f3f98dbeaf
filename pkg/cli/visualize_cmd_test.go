package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/mapdoc"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"order-summary", "order-summary"},
		{"users_list", "users_list"},
		{"Users List v2", "Users-List-v2"},
		{"a/b\\c:d", "a-b-c-d"},
		{"émigré", "-migr-"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sanitizeName(tc.in), "sanitizeName(%q)", tc.in)
	}
}

func TestVisualizeDest_Precedence(t *testing.T) {
	doc := &mapdoc.Document{Usecase: mapdoc.Usecase{Name: "users list", Output: "custom.html"}}

	t.Run("override wins", func(t *testing.T) {
		assert.Equal(t, "elsewhere.html", visualizeDest("elsewhere.html", doc, "output"))
	})

	t.Run("document output under output dir", func(t *testing.T) {
		assert.Equal(t, filepath.Join("output", "custom.html"), visualizeDest("", doc, "output"))
	})

	t.Run("sanitized usecase fallback", func(t *testing.T) {
		plain := &mapdoc.Document{Usecase: mapdoc.Usecase{Name: "users list"}}
		assert.Equal(t, filepath.Join("output", "users-list.html"), visualizeDest("", plain, "output"))
	})
}

func TestCLI_Visualize_DefaultOutput(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "rendered")
	t.Setenv("FIELDMAP_OUTPUT_DIR", outDir)
	path := writeFixtureWorkspace(t, testValidDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"visualize", path})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	dest := filepath.Join(outDir, "users-list.html")
	assert.Equal(t, dest, strings.TrimSpace(out))

	html, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<!doctype html>")
	assert.Contains(t, string(html), "users-list")
}

func TestCLI_Visualize_OutputOverride(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "page.html")
	path := writeFixtureWorkspace(t, testValidDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"visualize", "-o", dest, path})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Equal(t, dest, strings.TrimSpace(out))

	_, err = os.Stat(dest)
	require.NoError(t, err)
}

func TestCLI_Visualize_DocumentOutputField(t *testing.T) {
	outDir := t.TempDir()
	t.Setenv("FIELDMAP_OUTPUT_DIR", outDir)

	doc := strings.Replace(testValidDoc, "summary: Users with names", "output: users.html", 1)
	path := writeFixtureWorkspace(t, doc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"visualize", path})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "users.html"), strings.TrimSpace(out))
}
