package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/history"
	"fieldmap/internal/validate"
)

func TestCLI_CommandTree(t *testing.T) {
	rootCmd := newRootCmd()
	cmdNames := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdNames[cmd.Name()] = true
	}

	expectedCommands := []string{
		"validate", "parse", "visualize",
		"lint", "introspect", "serve",
		"commands", "version", "completion",
	}

	for _, name := range expectedCommands {
		t.Run(name, func(t *testing.T) {
			assert.True(t, cmdNames[name], "expected command %q to exist on root", name)
		})
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"nonexistent"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestCLI_Validate_CleanDocument(t *testing.T) {
	t.Setenv("FIELDMAP_RULES_DIR", "")
	path := writeFixtureWorkspace(t, testValidDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", path})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, path)
	assert.NotContains(t, out, "error(s)")
}

func TestCLI_Validate_BrokenDocumentExitsOne(t *testing.T) {
	t.Setenv("FIELDMAP_RULES_DIR", "")
	path := writeFixtureWorkspace(t, testBrokenDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", path})
	err := rootCmd.Execute()
	out := restore()

	require.Error(t, err)
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)

	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "1.")
	assert.Contains(t, out, "error(s)")
}

func TestCLI_Validate_JSONOutput(t *testing.T) {
	t.Setenv("FIELDMAP_RULES_DIR", "")
	path := writeFixtureWorkspace(t, testBrokenDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", "--json", path})
	err := rootCmd.Execute()
	out := restore()

	var ee *exitError
	require.ErrorAs(t, err, &ee)

	var res validate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, validate.StatusError, res.Status)
	assert.Equal(t, path, res.File)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestCLI_Validate_ParseFailureDegradesToJSON(t *testing.T) {
	t.Setenv("FIELDMAP_RULES_DIR", "")
	path := writeFixtureWorkspace(t, "{{{not yaml")

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", "--json", path})
	err := rootCmd.Execute()
	out := restore()

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)

	var res validate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, validate.StatusError, res.Status)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "parse", res.Diagnostics[0].Rule)
	assert.Equal(t, validate.SeverityError, res.Diagnostics[0].Severity)
}

func TestCLI_Validate_HistoryRecordsRun(t *testing.T) {
	t.Setenv("FIELDMAP_RULES_DIR", "")
	dbPath := filepath.Join(t.TempDir(), "runs.sqlite")
	t.Setenv("FIELDMAP_HISTORY_DB", dbPath)
	path := writeFixtureWorkspace(t, testValidDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", "--history", path})
	err := rootCmd.Execute()
	restore()
	require.NoError(t, err)

	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, path, runs[0].File)
	assert.Equal(t, validate.StatusOK, runs[0].Status)
}

func TestCLI_Validate_CustomRules(t *testing.T) {
	rulesDir := t.TempDir()
	rule := `
def check(doc):
    return [{"severity": "error", "message": "usecase %s rejected" % doc["usecase"]}]
`
	require.NoError(t, writeFile(rulesDir, "reject.star", rule))
	path := writeFixtureWorkspace(t, testValidDoc)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate", "--rules", rulesDir, path})
	err := rootCmd.Execute()
	out := restore()

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, out, "custom/reject")
	assert.Contains(t, out, "usecase users-list rejected")
}

func TestCLI_Validate_MissingArg(t *testing.T) {
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"validate"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestCLI_Completion(t *testing.T) {
	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"completion", "bash"})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Contains(t, out, "bash")
}

func TestCLI_Completion_UnsupportedShell(t *testing.T) {
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"completion", "tcsh"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported shell")
}

func TestExitError_Message(t *testing.T) {
	err := &exitError{code: 3}
	assert.Equal(t, "exit status 3", err.Error())
}
