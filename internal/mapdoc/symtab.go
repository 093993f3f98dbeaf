package mapdoc

// SymbolTable maps join bindings to physical tables for one mapping tree. A
// join binds first, then each join_chain link in declared order; an aliased
// entry binds under its alias, an unaliased one under its bare table name.
// Nested mappings extend their parent's bindings, so a child's references
// resolve through everything accumulated above it.
type SymbolTable struct {
	parent   *SymbolTable
	names    []string
	bindings map[string]string
}

// NewSymbolTable creates a scope extending parent (which may be nil).
func NewSymbolTable(parent *SymbolTable) *SymbolTable {
	return &SymbolTable{parent: parent, bindings: map[string]string{}}
}

// Bind records name as referring to the physical table. The first binding
// for a name wins; later rebinds of the same name are ignored.
func (s *SymbolTable) Bind(name, table string) {
	if _, ok := s.bindings[name]; ok {
		return
	}
	s.names = append(s.names, name)
	s.bindings[name] = table
}

// Lookup finds the physical table bound to name, searching enclosing scopes
// outward.
func (s *SymbolTable) Lookup(name string) (string, bool) {
	for t := s; t != nil; t = t.parent {
		if table, ok := t.bindings[name]; ok {
			return table, true
		}
	}
	return "", false
}

// Resolve returns the physical table for name, falling back to name itself
// when no binding exists. Unjoined base tables resolve through the fallback.
func (s *SymbolTable) Resolve(name string) string {
	if s == nil {
		return name
	}
	if table, ok := s.Lookup(name); ok {
		return table
	}
	return name
}

// scopeFor builds the symbol table in effect at node: the parent scope plus
// the node's own join and chain bindings.
func scopeFor(parent *SymbolTable, node *MappingNode) *SymbolTable {
	if node.Join == nil && len(node.JoinChain) == 0 {
		return parent
	}
	scope := NewSymbolTable(parent)
	if node.Join != nil {
		scope.Bind(bindingName(node.Join.Alias, node.Join.Table), node.Join.Table)
	}
	for _, link := range node.JoinChain {
		scope.Bind(bindingName(link.Alias, link.Table), link.Table)
	}
	return scope
}

func bindingName(alias, table string) string {
	if alias != "" {
		return alias
	}
	return table
}

// WalkMappings visits every mapping node depth-first in declaration order.
// The callback receives the node, its nesting depth, and the symbol table in
// scope at that node. The scope may be nil for nodes with no join anywhere
// above them; SymbolTable.Resolve handles that.
func WalkMappings(nodes []MappingNode, fn func(node *MappingNode, depth int, scope *SymbolTable)) {
	walkMappings(nodes, 0, nil, fn)
}

func walkMappings(nodes []MappingNode, depth int, parent *SymbolTable, fn func(*MappingNode, int, *SymbolTable)) {
	for i := range nodes {
		node := &nodes[i]
		scope := scopeFor(parent, node)
		fn(node, depth, scope)
		if len(node.Fields) > 0 {
			walkMappings(node.Fields, depth+1, scope, fn)
		}
	}
}
