package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fieldmap/internal/config"
	"fieldmap/internal/fetch"
	"fieldmap/internal/history"
	"fieldmap/internal/mapdoc"
	"fieldmap/internal/resolver"
	"fieldmap/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var (
		jsonOut  bool
		record   bool
		rulesDir string
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a mapping document against its imported schemas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if rulesDir == "" {
				rulesDir = cfg.RulesDir
			}
			warnDocumentSuffix(args[0])

			res := runDocumentPipeline(cmd.Context(), args[0], rulesDir, cfg)
			if record {
				recordRun(cmd.Context(), cfg.HistoryDB, res)
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
			} else {
				printResult(os.Stdout, res)
			}

			if !res.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&record, "history", false, "record the run in the history database")
	cmd.Flags().StringVar(&rulesDir, "rules", "", "directory of custom .star rules (default FIELDMAP_RULES_DIR)")
	return cmd
}

// runDocumentPipeline runs parse, resolve, and validate for one document.
// Parse and resolution failures fold into a single-diagnostic error result
// so every run yields a printable, recordable Result.
func runDocumentPipeline(ctx context.Context, path, rulesDir string, cfg *config.Config) *validate.Result {
	doc, err := mapdoc.ParseFile(path)
	if err != nil {
		return validate.ErrorResult(path, "parse", err)
	}

	schemas, err := resolver.NewWithSource(fetch.NewSource(cfg)).Resolve(ctx, filepath.Dir(path), doc)
	if err != nil {
		return validate.ErrorResult(path, "resolve", err)
	}

	v := validate.New()
	v.Append(customRules(rulesDir)...)
	return v.Validate(path, doc, schemas)
}

// customRules loads .star rules from dir. An absent directory is fine; any
// other load failure is logged and the built-in rules run alone.
func customRules(dir string) []validate.Rule {
	if dir == "" {
		return nil
	}
	rules, err := validate.LoadCustomRules(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("load custom rules", "dir", dir, "error", err)
		}
		return nil
	}
	return rules
}

// recordRun appends the result to the history store. History failures warn
// rather than fail: a broken history DB must not mask the verdict.
func recordRun(ctx context.Context, dbPath string, res *validate.Result) {
	store, err := history.Open(dbPath)
	if err != nil {
		slog.Warn("open history store", "path", dbPath, "error", err)
		return
	}
	defer store.Close()
	if _, err := store.Record(ctx, res); err != nil {
		slog.Warn("record run", "path", dbPath, "error", err)
	}
}

// printResult renders the pass/fail report with a numbered diagnostic list.
func printResult(w io.Writer, res *validate.Result) {
	if res.OK() {
		fmt.Fprintf(w, "%s %s\n", paint(colorGreen, "✓"), res.File)
	} else {
		fmt.Fprintf(w, "%s %s\n", paint(colorRed, "✗"), res.File)
	}

	var errs, warns int
	for i, d := range res.Diagnostics {
		color := colorYellow
		if d.Severity == validate.SeverityError {
			color = colorRed
			errs++
		} else {
			warns++
		}
		fmt.Fprintf(w, "  %d. %s %s: %s\n", i+1, paint(color, string(d.Severity)), d.Rule, d.Message)
	}
	if len(res.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", errs, warns)
	}
}
