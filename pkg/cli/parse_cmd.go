package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldmap/internal/mapdoc"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a mapping document and print its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			warnDocumentSuffix(args[0])
			doc, err := mapdoc.ParseFile(args[0])
			if err != nil {
				return err
			}
			printDocument(os.Stdout, doc)
			return nil
		},
	}
}

// printDocument renders the parsed document as a summary plus the indented
// mapping tree. Purely structural: no schema resolution happens here.
func printDocument(w io.Writer, doc *mapdoc.Document) {
	fmt.Fprintf(w, "usecase: %s\n", doc.Usecase.Name)
	fmt.Fprintf(w, "version: %s\n", doc.Version)
	if doc.Usecase.Summary != "" {
		fmt.Fprintf(w, "summary: %s\n", doc.Usecase.Summary)
	}
	fmt.Fprintf(w, "fields: %d  filters: %d  transforms: %d\n",
		countFields(doc.Usecase.ResponseMapping), len(doc.Usecase.Filters), len(doc.Usecase.Transforms))

	fmt.Fprintf(w, "\nresponse_mapping:\n")
	printMappingNodes(w, doc.Usecase.ResponseMapping, 1)
}

func countFields(nodes []mapdoc.MappingNode) int {
	n := 0
	for i := range nodes {
		n++
		n += countFields(nodes[i].Fields)
	}
	return n
}

func printMappingNodes(w io.Writer, nodes []mapdoc.MappingNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for i := range nodes {
		node := &nodes[i]
		fmt.Fprintf(w, "%s%s\n", indent, fieldLine(node))
		if node.Join != nil {
			fmt.Fprintf(w, "%s  └─ %s %s ON %s%s\n",
				indent, node.Join.JoinType(), node.Join.Table, node.Join.On, aliasNote(node.Join.Alias))
		}
		for _, link := range node.JoinChain {
			fmt.Fprintf(w, "%s  └─ JOIN %s ON %s%s\n",
				indent, link.Table, link.On, aliasNote(link.Alias))
		}
		printMappingNodes(w, node.Fields, depth+1)
	}
}

// fieldLine renders one field with its badges and source.
func fieldLine(node *mapdoc.MappingNode) string {
	line := node.Field
	if node.IsArray() {
		line += " [array]"
	}
	if node.Aggregate != nil {
		line += fmt.Sprintf(" [%s]", node.Aggregate.AggregateType())
	}
	switch {
	case node.Source != "":
		line += fmt.Sprintf(" (%s)", node.Source)
	case node.SourceTable != "":
		line += fmt.Sprintf(" (%s)", node.SourceTable)
	}
	return line
}

func aliasNote(alias string) string {
	if alias == "" {
		return ""
	}
	return fmt.Sprintf(" (alias: %s)", alias)
}
