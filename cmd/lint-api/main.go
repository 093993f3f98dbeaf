// Command lint-api checks an OpenAPI 3.x description for the conventions
// that keep it addressable from mapping documents.
//
// Usage:
//
//	go run ./cmd/lint-api [flags] <openapi.yaml> [more.yaml ...]
//
// Flags:
//
//	-ruleset   Path to a custom vacuum ruleset (default: built-in rules)
//	-severity  Minimum severity to report: error, warn, info, hint (default: all)
package main

import (
	"flag"
	"fmt"
	"os"

	"fieldmap/pkg/apilint"
)

func main() {
	rulesetPath := flag.String("ruleset", "", "path to a custom vacuum ruleset (default: built-in rules)")
	severity := flag.String("severity", "", "minimum severity to report: error, warn, info, hint (default: all)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: lint-api [flags] <openapi.yaml> [more.yaml ...]\n")
		os.Exit(2)
	}

	var minSev apilint.Severity
	if *severity != "" {
		minSev = apilint.Severity(*severity)
		switch minSev {
		case apilint.SeverityError, apilint.SeverityWarn, apilint.SeverityInfo, apilint.SeverityHint:
		default:
			fmt.Fprintf(os.Stderr, "error: unknown severity %q (use: error, warn, info, hint)\n", *severity)
			os.Exit(2)
		}
	}

	var linter *apilint.Linter
	if *rulesetPath != "" {
		rs, err := apilint.LoadRuleSet(*rulesetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		linter = apilint.NewWithRuleSet(rs)
	} else {
		var err error
		linter, err = apilint.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
	}

	total := 0
	failed := false
	for _, path := range flag.Args() {
		violations, err := linter.LintFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		if minSev != "" {
			violations = apilint.Filter(violations, minSev)
		}
		for _, v := range violations {
			fmt.Println(v)
		}
		if len(violations) == 0 {
			fmt.Printf("%s: ok (0 violations)\n", path)
		}
		total += len(violations)
		if apilint.HasErrors(violations) {
			failed = true
		}
	}

	if total > 0 {
		fmt.Printf("\n%d violation(s) found\n", total)
	}
	if failed {
		os.Exit(1)
	}
}
