package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"fieldmap/internal/config"
	"fieldmap/internal/graph"
	"fieldmap/internal/mapdoc"
	"fieldmap/internal/ui"
)

func newVisualizeCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "visualize <file>",
		Short: "Render a mapping document as an interactive HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			warnDocumentSuffix(args[0])

			doc, err := mapdoc.ParseFile(args[0])
			if err != nil {
				return err
			}
			model := graph.Build(doc)

			dest := visualizeDest(outPath, doc, cfg.OutputDir)
			if dir := filepath.Dir(dest); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output dir %s: %w", dir, err)
				}
			}

			var buf bytes.Buffer
			if err := ui.Render(&buf, model); err != nil {
				return fmt.Errorf("render visualization: %w", err)
			}
			if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", dest, err)
			}

			fmt.Fprintln(os.Stdout, dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default output/<usecase>.html)")
	return cmd
}

// visualizeDest picks the output path: an explicit -o wins, then the
// document's own output field, then a name derived from the usecase. The
// latter two are rooted under the configured output directory.
func visualizeDest(override string, doc *mapdoc.Document, outputDir string) string {
	if override != "" {
		return override
	}
	name := doc.Usecase.Output
	if name == "" {
		name = sanitizeName(doc.Usecase.Name) + ".html"
	}
	return filepath.Join(outputDir, name)
}

// sanitizeName maps a usecase name onto a safe file stem. Anything outside
// [A-Za-z0-9_-] becomes '-'.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}
