package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldmap/pkg/apilint"
)

func newLintCmd() *cobra.Command {
	var (
		rulesetPath string
		failOn      string
	)

	cmd := &cobra.Command{
		Use:   "lint <openapi-file>",
		Short: "Lint an OpenAPI description for mapping-friendly conventions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failSev := apilint.Severity(failOn)
			if failSev != apilint.SeverityError && failSev != apilint.SeverityWarn {
				return fmt.Errorf("invalid --fail-on %q: use error or warn", failOn)
			}

			linter, err := newLinter(rulesetPath)
			if err != nil {
				return err
			}

			violations, err := linter.LintFile(args[0])
			if err != nil {
				return err
			}

			for _, v := range violations {
				fmt.Fprintln(os.Stdout, v)
			}
			if len(violations) == 0 {
				fmt.Fprintf(os.Stdout, "%s: ok (0 violations)\n", args[0])
			} else {
				fmt.Fprintf(os.Stdout, "\n%d violation(s) found\n", len(violations))
			}

			if apilint.HasAtOrAbove(violations, failSev) {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesetPath, "ruleset", "", "custom ruleset YAML (Spectral format)")
	cmd.Flags().StringVar(&failOn, "fail-on", "error", "minimum severity that fails the command (error|warn)")
	return cmd
}

// newLinter builds a linter from the optional custom ruleset path.
func newLinter(rulesetPath string) (*apilint.Linter, error) {
	if rulesetPath == "" {
		return apilint.New()
	}
	rs, err := apilint.LoadRuleSet(rulesetPath)
	if err != nil {
		return nil, err
	}
	return apilint.NewWithRuleSet(rs), nil
}
