package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI_Version(t *testing.T) {
	SetVersionInfo("1.2.3", "abcdef1", "2026-08-01")
	defer SetVersionInfo("dev", "none", "unknown")

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"version"})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Equal(t, "fieldmap version 1.2.3 (commit: abcdef1, built: 2026-08-01)\n", out)
}
