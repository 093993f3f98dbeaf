// Package graph builds the visualization model for a mapping document: the
// field, join/transform unit, and table nodes an independent renderer lays
// out. Building is pure and structural, with no I/O and no re-validation.
package graph

import (
	"fmt"
	"strings"
)

// Kind classifies how a field's unit reaches its tables. Exactly one kind
// applies per field, chosen by precedence aggregate > join-chain > join >
// simple.
type Kind string

const (
	KindSimple    Kind = "simple"
	KindJoin      Kind = "join"
	KindJoinChain Kind = "join-chain"
	KindAggregate Kind = "aggregate"
)

// FieldNode is one response field with its join/transform unit folded in.
// Array fields own their element mapping as Children.
type FieldNode struct {
	Name       string      `json:"name"`
	Depth      int         `json:"depth"`
	Kind       Kind        `json:"kind"`
	Badges     []string    `json:"badges,omitempty"`
	JoinLines  []string    `json:"join_lines,omitempty"`
	Transforms []string    `json:"transforms,omitempty"`
	Tables     []string    `json:"tables,omitempty"`
	Children   []FieldNode `json:"children,omitempty"`
}

// TableNode is one referenced table: its declared aliases and the number of
// fields touching it.
type TableNode struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	RefCount int      `json:"ref_count"`
}

// Display renders the table card title, "physical (as alias)" when aliases
// were declared.
func (t *TableNode) Display() string {
	if len(t.Aliases) == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s (as %s)", t.Name, strings.Join(t.Aliases, ", "))
}

// Model is the full graph for one document. Serializable; rendering it is a
// separate concern.
type Model struct {
	Usecase string      `json:"usecase"`
	Summary string      `json:"summary,omitempty"`
	Fields  []FieldNode `json:"fields"`
	Tables  []TableNode `json:"tables"`
}

// Flatten returns every field node in depth-first order, the order a
// renderer lists cards in.
func (m *Model) Flatten() []*FieldNode {
	var out []*FieldNode
	var walk func(nodes []FieldNode)
	walk = func(nodes []FieldNode) {
		for i := range nodes {
			out = append(out, &nodes[i])
			walk(nodes[i].Children)
		}
	}
	walk(m.Fields)
	return out
}
