// Package mapdoc defines the mapping-language document model and its parser.
//
// A mapping document binds the fields of one API response to the database
// columns, joins, aggregates, and transforms that produce them. It references
// two external schema artifacts (an OpenAPI description and a DBML schema)
// through a small reference-expression grammar; resolution of those
// references is internal/resolver's job. Parsing here is structural only.
package mapdoc

// Version is the only mapping-language version this parser accepts.
const Version = "0.1"

// DocumentSuffix is the file convention for mapping documents.
const DocumentSuffix = ".fieldmap.yaml"

// Document is the parsed mapping file. One usecase per file.
type Document struct {
	Version string  `yaml:"version"`
	Import  Import  `yaml:"import"`
	Usecase Usecase `yaml:"usecase"`

	// Parsed reference expressions, derived from Import during Parse.
	API    APIRef     `yaml:"-"`
	Tables []TableRef `yaml:"-"`
}

// Import names the external schema artifacts the document cross-references.
type Import struct {
	OpenAPI string   `yaml:"openapi"`
	DBML    []string `yaml:"dbml"`
}

// Usecase is the declarative body of the document.
type Usecase struct {
	Name            string        `yaml:"name"`
	Summary         string        `yaml:"summary,omitempty"`
	Output          string        `yaml:"output,omitempty"`
	ResponseMapping []MappingNode `yaml:"response_mapping"`
	Filters         []Filter      `yaml:"filters,omitempty"`
	Transforms      []Transform   `yaml:"transforms,omitempty"`
}

// MappingNode binds one response field to its data source. Array nodes own
// a nested mapping for their element shape under Fields; nesting depth is
// unbounded.
type MappingNode struct {
	Field       string        `yaml:"field"`
	Type        string        `yaml:"type,omitempty"` // "array" or empty (scalar)
	Source      string        `yaml:"source,omitempty"`
	SourceTable string        `yaml:"source_table,omitempty"`
	Join        *Join         `yaml:"join,omitempty"`
	JoinChain   []JoinLink    `yaml:"join_chain,omitempty"`
	Aggregate   *Aggregate    `yaml:"aggregate,omitempty"`
	Fields      []MappingNode `yaml:"fields,omitempty"`
}

// IsArray reports whether the node maps an array-valued field.
func (m *MappingNode) IsArray() bool {
	return m.Type == KindArray
}

// KindArray is the wire value of MappingNode.Type marking array mappings.
const KindArray = "array"

// Join is a mapping's primary join.
type Join struct {
	Table string `yaml:"table"`
	On    string `yaml:"on"`
	Type  string `yaml:"type,omitempty"`
	Alias string `yaml:"alias,omitempty"`
}

// JoinType returns the normalized join type, defaulting to LEFT JOIN.
func (j *Join) JoinType() JoinType {
	t, _ := NormalizeJoinType(j.Type)
	return t
}

// JoinLink is one step of a join chain, applied after the primary join in
// declared order. Links may introduce their own alias.
type JoinLink struct {
	Table string `yaml:"table"`
	On    string `yaml:"on"`
	Alias string `yaml:"alias,omitempty"`
}

// JoinType is a normalized join kind.
type JoinType string

// JoinLeft and friends enumerate the supported join types.
const (
	JoinInner JoinType = "INNER JOIN"
	JoinLeft  JoinType = "LEFT JOIN"
	JoinRight JoinType = "RIGHT JOIN"
)

// joinTypes maps accepted wire spellings (upper-cased) to join types.
var joinTypes = map[string]JoinType{
	"":           JoinLeft,
	"INNER":      JoinInner,
	"INNER JOIN": JoinInner,
	"LEFT":       JoinLeft,
	"LEFT JOIN":  JoinLeft,
	"RIGHT":      JoinRight,
	"RIGHT JOIN": JoinRight,
}

// Aggregate folds joined rows into a single value.
type Aggregate struct {
	Type    string `yaml:"type"`
	GroupBy string `yaml:"group_by,omitempty"`
}

// AggregateType is a normalized aggregate function.
type AggregateType string

// AggregateCount and friends enumerate the supported aggregate functions.
const (
	AggregateCount AggregateType = "COUNT"
	AggregateSum   AggregateType = "SUM"
	AggregateAvg   AggregateType = "AVG"
	AggregateMin   AggregateType = "MIN"
	AggregateMax   AggregateType = "MAX"
)

var aggregateTypes = map[string]AggregateType{
	"COUNT": AggregateCount,
	"SUM":   AggregateSum,
	"AVG":   AggregateAvg,
	"MIN":   AggregateMin,
	"MAX":   AggregateMax,
}

// AggregateType returns the normalized aggregate function.
func (a *Aggregate) AggregateType() AggregateType {
	t, _ := NormalizeAggregateType(a.Type)
	return t
}

// Filter declares how one API parameter maps onto query mechanics.
type Filter struct {
	Param  string `yaml:"param"`
	MapsTo string `yaml:"maps_to"`

	// WHERE
	Condition string `yaml:"condition,omitempty"`

	// PAGINATION
	Strategy    string `yaml:"strategy,omitempty"`
	PageSize    int    `yaml:"page_size,omitempty"`
	LimitParam  string `yaml:"limit_param,omitempty"`
	MaxPageSize int    `yaml:"max_page_size,omitempty"`
	CursorField string `yaml:"cursor_field,omitempty"`

	// ORDER_BY
	DefaultColumn     string   `yaml:"default_column,omitempty"`
	DefaultDirection  string   `yaml:"default_direction,omitempty"`
	AllowedColumns    []string `yaml:"allowed_columns,omitempty"`
	AllowedDirections []string `yaml:"allowed_directions,omitempty"`
}

// MapsWhere and friends are the wire values of Filter.MapsTo.
const (
	MapsWhere      = "WHERE"
	MapsPagination = "PAGINATION"
	MapsOrderBy    = "ORDER_BY"
)

// StrategyOffset and StrategyCursor are the pagination strategies.
const (
	StrategyOffset = "offset"
	StrategyCursor = "cursor"
)

// Transform rewrites one response field's value. The optional Conditions
// gate whether the transform applies; all conditions AND together.
type Transform struct {
	Target string `yaml:"target"`
	Type   string `yaml:"type"`

	// COALESCE, CONCAT
	Source    string   `yaml:"source,omitempty"`
	Sources   []string `yaml:"sources,omitempty"`
	Fallback  string   `yaml:"fallback,omitempty"`
	Separator string   `yaml:"separator,omitempty"`

	// CASE
	When      []CaseWhen `yaml:"when,omitempty"`
	ElseValue string     `yaml:"else_value,omitempty"`

	// MASK
	MaskPattern string `yaml:"mask_pattern,omitempty"`

	// CONDITIONAL_SOURCE
	Conditions []TransformCondition `yaml:"condition,omitempty"`
	ThenSource string               `yaml:"then_source,omitempty"`
	ElseSource string               `yaml:"else_source,omitempty"`
}

// TransformType is a normalized transform kind.
type TransformType string

// TransformCoalesce and friends enumerate the supported transform kinds.
const (
	TransformCoalesce          TransformType = "COALESCE"
	TransformConcat            TransformType = "CONCAT"
	TransformCase              TransformType = "CASE"
	TransformMask              TransformType = "MASK"
	TransformConditionalSource TransformType = "CONDITIONAL_SOURCE"
)

var transformTypes = map[string]TransformType{
	"COALESCE":           TransformCoalesce,
	"CONCAT":             TransformConcat,
	"CASE":               TransformCase,
	"MASK":               TransformMask,
	"CONDITIONAL_SOURCE": TransformConditionalSource,
}

// TransformType returns the normalized transform kind.
func (t *Transform) TransformType() TransformType {
	k, _ := NormalizeTransformType(t.Type)
	return k
}

// CaseWhen is one value→result branch of a CASE transform.
type CaseWhen struct {
	Value string `yaml:"value"`
	Then  string `yaml:"then"`
}

// TransformCondition gates a transform on a parameter, response field, or
// source column. Exactly one of Param/Field/Source names the subject.
type TransformCondition struct {
	Param    string `yaml:"param,omitempty"`
	Field    string `yaml:"field,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}
