package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldmap/internal/dbml"
	"fieldmap/internal/introspect"
)

func newIntrospectCmd() *cobra.Command {
	var (
		dsn     string
		driver  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "introspect --dsn <dsn>",
		Short: "Read a live database schema and emit it as DBML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := introspect.Introspect(cmd.Context(), driver, dsn)
			if err != nil {
				return err
			}

			out := dbml.Format(schema)
			if outPath == "" {
				fmt.Fprint(os.Stdout, out)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintln(os.Stdout, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string (required)")
	cmd.Flags().StringVar(&driver, "driver", "duckdb", "database driver (duckdb|sqlite)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("dsn")
	return cmd
}
