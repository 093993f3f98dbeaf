package cli

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"fieldmap/internal/validate"
)

// Test processes run without a terminal on stdout, so paint must pass
// strings through unchanged.
func TestPaint_PlainWithoutTerminal(t *testing.T) {
	restore := captureStdout(t)
	painted := paint(colorGreen, "✓")
	restore()

	assert.Equal(t, "✓", painted)
}

func TestWarnDocumentSuffix(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	warnDocumentSuffix("orders.fieldmap.yaml")
	assert.Empty(t, buf.String())

	warnDocumentSuffix("orders.yml")
	assert.Contains(t, buf.String(), "expected suffix")
	assert.Contains(t, buf.String(), "orders.yml")
}

func TestPrintResult_CleanRun(t *testing.T) {
	restore := captureStdout(t)
	res := &validate.Result{File: "doc.fieldmap.yaml", Status: validate.StatusOK}

	var buf bytes.Buffer
	printResult(&buf, res)
	restore()

	assert.Equal(t, "✓ doc.fieldmap.yaml\n", buf.String())
}

func TestPrintResult_DiagnosticsNumberedWithTrailer(t *testing.T) {
	res := &validate.Result{
		File:   "doc.fieldmap.yaml",
		Status: validate.StatusError,
		Diagnostics: []validate.Diagnostic{
			{Severity: validate.SeverityError, Rule: "field-exists", Message: "no such field"},
			{Severity: validate.SeverityWarning, Rule: "type-compat", Message: "lossy cast"},
		},
	}

	restore := captureStdout(t)
	var buf bytes.Buffer
	printResult(&buf, res)
	restore()
	out := buf.String()

	assert.Contains(t, out, "✗ doc.fieldmap.yaml\n")
	assert.Contains(t, out, "  1. error field-exists: no such field\n")
	assert.Contains(t, out, "  2. warning type-compat: lossy cast\n")
	assert.Contains(t, out, "\n1 error(s), 1 warning(s)\n")
}

func TestPrintResult_WarningsOnlyKeepsCheckmark(t *testing.T) {
	res := &validate.Result{
		File:   "doc.fieldmap.yaml",
		Status: validate.StatusOK,
		Diagnostics: []validate.Diagnostic{
			{Severity: validate.SeverityWarning, Rule: "type-compat", Message: "lossy cast"},
		},
	}

	restore := captureStdout(t)
	var buf bytes.Buffer
	printResult(&buf, res)
	restore()
	out := buf.String()

	assert.Contains(t, out, "✓ doc.fieldmap.yaml\n")
	assert.Contains(t, out, "0 error(s), 1 warning(s)")
}
