package validate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/mapdoc"
	"fieldmap/internal/resolver"
)

const usersListDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
    - ./schema.dbml#tables["posts"]
usecase:
  name: users-list
  summary: Paginated user list with post counts
  response_mapping:
    - field: id
      source: users.id
    - field: display_name
      source: users.name
    - field: post_count
      source: posts.id
      join:
        table: posts
        on: posts.user_id = users.id
      aggregate:
        type: COUNT
        group_by: users.id
  filters:
    - param: status
      maps_to: WHERE
      condition: "users.status = :status"
    - param: page
      maps_to: PAGINATION
      strategy: offset
      page_size: 20
  transforms:
    - target: display_name
      type: COALESCE
      sources:
        - users.nickname
        - users.name
      fallback: anonymous
`

const postsTagsDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/posts"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["posts"]
    - ./schema.dbml#tables["post_tags"]
    - ./schema.dbml#tables["tags"]
usecase:
  name: posts-with-tags
  response_mapping:
    - field: id
      source: posts.id
    - field: tags
      type: array
      source_table: tags
      join:
        table: post_tags
        on: posts.id = post_tags.post_id
      join_chain:
        - table: tags
          on: post_tags.tag_id = tags.id
      fields:
        - field: id
          source: tags.id
        - field: label
          source: tags.label
`

func parseDoc(t *testing.T, yaml string) *mapdoc.Document {
	t.Helper()
	doc, err := mapdoc.Parse(strings.NewReader(yaml), "test.fieldmap.yaml")
	require.NoError(t, err)
	return doc
}

// usersListSchemas resolves the users-list fixture: blog users and their
// posts.
func usersListSchemas() *resolver.Schemas {
	return &resolver.Schemas{
		API: &resolver.APISchema{
			Fields: map[string]string{
				"id":           "integer",
				"display_name": "string",
				"post_count":   "integer",
			},
			Parameters: []string{"status", "page"},
		},
		Tables: &resolver.TableSchema{
			Tables: map[string]*resolver.Table{
				"users": resolver.NewTable("users", []string{"id", "name", "nickname", "status"}, []string{"id"}),
				"posts": resolver.NewTable("posts", []string{"id", "user_id", "owner_id", "title"}, []string{"id"}),
			},
			ForeignKeys: []resolver.ForeignKey{
				{FromTable: "posts", FromColumn: "user_id", ToTable: "users", ToColumn: "id"},
			},
		},
	}
}

// postsTagsSchemas resolves the posts-with-tags fixture: posts joined to
// tags through the post_tags junction table.
func postsTagsSchemas() *resolver.Schemas {
	return &resolver.Schemas{
		API: &resolver.APISchema{
			Fields: map[string]string{
				"id":   "integer",
				"tags": "array[object]",
			},
		},
		Tables: &resolver.TableSchema{
			Tables: map[string]*resolver.Table{
				"posts":     resolver.NewTable("posts", []string{"id", "user_id", "title"}, []string{"id"}),
				"post_tags": resolver.NewTable("post_tags", []string{"post_id", "tag_id"}, []string{"post_id", "tag_id"}),
				"tags":      resolver.NewTable("tags", []string{"id", "label"}, []string{"id"}),
			},
		},
	}
}

func mustValidate(t *testing.T, yaml string, schemas *resolver.Schemas) *Result {
	t.Helper()
	return New().Validate("test.fieldmap.yaml", parseDoc(t, yaml), schemas)
}

func findRule(ds []Diagnostic, ruleID string) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Rule == ruleID {
			out = append(out, d)
		}
	}
	return out
}

// ============================================================
// Runner
// ============================================================

func TestValidate_UsersListClean(t *testing.T) {
	res := mustValidate(t, usersListDoc, usersListSchemas())
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.OK())
}

func TestValidate_PostsTagsClean(t *testing.T) {
	res := mustValidate(t, postsTagsDoc, postsTagsSchemas())
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, StatusOK, res.Status)
}

func TestValidate_RuleOrderAndIDs(t *testing.T) {
	want := []string{
		"field-schema-match",
		"table-coverage",
		"join-table-imported",
		"filter-param-declared",
		"transform-target-exists",
		"join-condition-resolvable",
		"alias-required-on-conflict",
		"aggregate-group-by-resolvable",
		"filter-condition-params-declared",
		"transform-when-param-declared",
		"array-source-table-consistency",
		"sort-column-allowlisted",
	}
	rules := New().Rules()
	require.Len(t, rules, len(want))
	for i, r := range rules {
		assert.Equal(t, want[i], r.ID())
	}
}

func TestValidate_DiagnosticsFollowRuleOrder(t *testing.T) {
	schemas := usersListSchemas()
	delete(schemas.API.Fields, "display_name")
	doc := strings.Replace(usersListDoc, ":status", ":statuz", 1)

	res := mustValidate(t, doc, schemas)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, "field-schema-match", res.Diagnostics[0].Rule)
	assert.Equal(t, "filter-condition-params-declared", res.Diagnostics[1].Rule)
}

func TestResult_JSONShape(t *testing.T) {
	res := &Result{
		File:   "users.fieldmap.yaml",
		Status: StatusError,
		Diagnostics: []Diagnostic{
			{Severity: SeverityError, Rule: "field-schema-match", Message: `field "nope" is missing`},
		},
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"file": "users.fieldmap.yaml",
		"status": "error",
		"diagnostics": [
			{"severity": "error", "rule": "field-schema-match", "message": "field \"nope\" is missing"}
		]
	}`, string(data))

	clean, err := json.Marshal(mustValidate(t, usersListDoc, usersListSchemas()))
	require.NoError(t, err)
	assert.Contains(t, string(clean), `"diagnostics":[]`)
}

// ============================================================
// field-schema-match
// ============================================================

func TestFieldSchemaMatch_UnknownField(t *testing.T) {
	schemas := usersListSchemas()
	delete(schemas.API.Fields, "display_name")

	res := mustValidate(t, usersListDoc, schemas)
	vs := findRule(res.Diagnostics, "field-schema-match")
	require.Len(t, vs, 1)
	assert.Equal(t, SeverityError, vs[0].Severity)
	assert.Contains(t, vs[0].Message, `"display_name"`)
	assert.Equal(t, StatusError, res.Status)
}

func TestFieldSchemaMatch_NestedFieldsNotChecked(t *testing.T) {
	schemas := postsTagsSchemas()
	// the API view only types top-level fields; "label" lives inside the
	// array element shape
	res := mustValidate(t, postsTagsDoc, schemas)
	assert.Empty(t, findRule(res.Diagnostics, "field-schema-match"))
}

// ============================================================
// table-coverage
// ============================================================

func TestTableCoverage_UnknownColumn(t *testing.T) {
	doc := strings.Replace(usersListDoc, "source: users.name", "source: users.fullname", 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "table-coverage")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"fullname"`)
	assert.Contains(t, vs[0].Message, `"users"`)
}

func TestTableCoverage_UnknownTable(t *testing.T) {
	doc := strings.Replace(usersListDoc, "source: users.name", "source: accounts.name", 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "table-coverage")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"accounts"`)
}

func TestTableCoverage_ArraySourceTable(t *testing.T) {
	schemas := postsTagsSchemas()
	delete(schemas.Tables.Tables, "tags")

	res := mustValidate(t, postsTagsDoc, schemas)
	vs := findRule(res.Diagnostics, "table-coverage")
	require.NotEmpty(t, vs)
	assert.Contains(t, vs[0].Message, `source_table "tags"`)
}

// ============================================================
// join-table-imported
// ============================================================

func TestJoinTableImported_UnknownJoinTable(t *testing.T) {
	doc := strings.Replace(usersListDoc, "table: posts", "table: comments", 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "join-table-imported")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"comments"`)
}

func TestJoinTableImported_UnknownChainTable(t *testing.T) {
	schemas := postsTagsSchemas()
	delete(schemas.Tables.Tables, "tags")

	res := mustValidate(t, postsTagsDoc, schemas)
	vs := findRule(res.Diagnostics, "join-table-imported")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `join_chain table "tags"`)
}

// ============================================================
// filter-param-declared
// ============================================================

func TestFilterParamDeclared_Undeclared(t *testing.T) {
	schemas := usersListSchemas()
	schemas.API.Parameters = []string{"page"}

	res := mustValidate(t, usersListDoc, schemas)
	vs := findRule(res.Diagnostics, "filter-param-declared")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"status"`)
	require.Len(t, res.Diagnostics, 1)
}

// ============================================================
// transform-target-exists
// ============================================================

func TestTransformTargetExists_UnknownTarget(t *testing.T) {
	doc := strings.Replace(usersListDoc, "target: display_name", "target: full_name", 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "transform-target-exists")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"full_name"`)
}

func TestTransformTargetExists_NestedTargetAllowed(t *testing.T) {
	doc := postsTagsDoc + `  transforms:
    - target: label
      type: MASK
      mask_pattern: "**"
`
	res := mustValidate(t, doc, postsTagsSchemas())
	assert.Empty(t, findRule(res.Diagnostics, "transform-target-exists"))
}

// ============================================================
// join-condition-resolvable
// ============================================================

func TestJoinConditionResolvable(t *testing.T) {
	tests := []struct {
		name    string
		on      string
		wantMsg string
	}{
		{"unknown column", "posts.author_id = users.id", `"author_id"`},
		{"unknown table", "writers.id = users.id", `"writers"`},
		{"not an equality", "posts.user_id", "not an equality"},
		{"bare side", "posts.user_id = users", "not a table.column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(usersListDoc, "on: posts.user_id = users.id", "on: "+tt.on, 1)

			res := mustValidate(t, doc, usersListSchemas())
			vs := findRule(res.Diagnostics, "join-condition-resolvable")
			require.Len(t, vs, 1)
			assert.Contains(t, vs[0].Message, tt.wantMsg)
		})
	}
}

func TestJoinConditionResolvable_AliasedChain(t *testing.T) {
	res := mustValidate(t, aliasedChainDoc, postsTagsSchemas())
	assert.Empty(t, res.Diagnostics)
}

// aliasedChainDoc binds the chain's tags link under alias t and references
// the alias everywhere, including in the link's own condition.
const aliasedChainDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/posts"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["posts"]
    - ./schema.dbml#tables["post_tags"]
    - ./schema.dbml#tables["tags"]
usecase:
  name: posts-with-tags-aliased
  response_mapping:
    - field: id
      source: posts.id
    - field: tags
      type: array
      source_table: t
      join:
        table: post_tags
        on: posts.id = post_tags.post_id
      join_chain:
        - table: tags
          on: post_tags.tag_id = t.id
          alias: t
      fields:
        - field: id
          source: t.id
        - field: label
          source: t.label
`

// ============================================================
// alias-required-on-conflict
// ============================================================

const conflictingJoinsDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
    - ./schema.dbml#tables["posts"]
usecase:
  name: users-conflict
  response_mapping:
    - field: id
      source: users.id
    - field: post_count
      source: posts.id
      join:
        table: posts
        on: posts.user_id = users.id
      aggregate:
        type: COUNT
        group_by: users.id
    - field: owned_post_count
      source: posts.id
      join:
        table: posts
        on: posts.owner_id = users.id
      aggregate:
        type: COUNT
        group_by: users.id
`

func TestAliasRequiredOnConflict(t *testing.T) {
	schemas := usersListSchemas()
	schemas.API.Fields["owned_post_count"] = "integer"

	res := mustValidate(t, conflictingJoinsDoc, schemas)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "alias-required-on-conflict", d.Rule)
	assert.Equal(t, SeverityError, d.Severity)
	assert.Contains(t, d.Message, `"posts"`)
}

func TestAliasRequiredOnConflict_AliasResolves(t *testing.T) {
	doc := strings.Replace(conflictingJoinsDoc,
		"on: posts.owner_id = users.id",
		"on: posts.owner_id = users.id\n        alias: owned", 1)
	schemas := usersListSchemas()
	schemas.API.Fields["owned_post_count"] = "integer"

	res := mustValidate(t, doc, schemas)
	assert.Empty(t, res.Diagnostics)
}

func TestAliasRequiredOnConflict_SameConditionNoConflict(t *testing.T) {
	doc := strings.Replace(conflictingJoinsDoc,
		"on: posts.owner_id = users.id",
		"on: posts.user_id = users.id", 1)
	schemas := usersListSchemas()
	schemas.API.Fields["owned_post_count"] = "integer"

	res := mustValidate(t, doc, schemas)
	assert.Empty(t, res.Diagnostics)
}

// ============================================================
// aggregate-group-by-resolvable
// ============================================================

const tagUsageDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/tags"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["post_tags"]
    - ./schema.dbml#tables["posts"]
usecase:
  name: tag-usage
  response_mapping:
    - field: tag_id
      source: post_tags.tag_id
    - field: use_count
      source: posts.id
      join:
        table: posts
        on: posts.id = post_tags.post_id
      aggregate:
        type: COUNT
`

func tagUsageSchemas() *resolver.Schemas {
	return &resolver.Schemas{
		API: &resolver.APISchema{
			Fields: map[string]string{"tag_id": "integer", "use_count": "integer"},
		},
		Tables: &resolver.TableSchema{
			Tables: map[string]*resolver.Table{
				"posts":     resolver.NewTable("posts", []string{"id", "user_id", "title"}, []string{"id"}),
				"post_tags": resolver.NewTable("post_tags", []string{"post_id", "tag_id"}, []string{"post_id", "tag_id"}),
			},
		},
	}
}

func TestAggregateGroupBy_DefaultsToSingleColumnPK(t *testing.T) {
	doc := strings.Replace(usersListDoc, "        type: COUNT\n        group_by: users.id", "        type: COUNT", 1)

	res := mustValidate(t, doc, usersListSchemas())
	assert.Empty(t, res.Diagnostics)
}

func TestAggregateGroupBy_CompositePKRequiresExplicit(t *testing.T) {
	res := mustValidate(t, tagUsageDoc, tagUsageSchemas())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "aggregate-group-by-resolvable", d.Rule)
	assert.Contains(t, d.Message, `"post_tags"`)
	assert.Contains(t, d.Message, "single-column primary key")
}

func TestAggregateGroupBy_ExplicitSatisfiesCompositeRoot(t *testing.T) {
	doc := strings.Replace(tagUsageDoc, "        type: COUNT", "        type: COUNT\n        group_by: post_tags.tag_id", 1)

	res := mustValidate(t, doc, tagUsageSchemas())
	assert.Empty(t, res.Diagnostics)
}

func TestAggregateGroupBy_UnresolvableExplicit(t *testing.T) {
	doc := strings.Replace(usersListDoc, "group_by: users.id", "group_by: users.team_id", 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "aggregate-group-by-resolvable")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "unknown column")
}

func TestAggregateGroupBy_NoRootTable(t *testing.T) {
	schemas := tagUsageSchemas()
	delete(schemas.Tables.Tables, "post_tags")

	res := mustValidate(t, tagUsageDoc, schemas)
	vs := findRule(res.Diagnostics, "aggregate-group-by-resolvable")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "no root table")
}

func TestAggregateGroupBy_ArrayRootIsSourceTable(t *testing.T) {
	doc := strings.Replace(postsTagsDoc,
		"        - field: label\n          source: tags.label",
		"        - field: label\n          source: tags.label\n        - field: post_usage\n          source: post_tags.post_id\n          aggregate:\n            type: COUNT", 1)
	schemas := postsTagsSchemas()

	// the enclosing array is rooted on tags, whose primary key is the
	// single column id
	res := mustValidate(t, doc, schemas)
	assert.Empty(t, res.Diagnostics)
}

// ============================================================
// filter-condition-params-declared
// ============================================================

func TestFilterConditionParams_TypoIsSingleError(t *testing.T) {
	doc := strings.Replace(usersListDoc, ":status", ":statuz", 1)

	res := mustValidate(t, doc, usersListSchemas())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "filter-condition-params-declared", d.Rule)
	assert.Equal(t, SeverityError, d.Severity)
	assert.Contains(t, d.Message, ":statuz")
	assert.Equal(t, StatusError, res.Status)
}

func TestFilterConditionParams_MultiplePlaceholders(t *testing.T) {
	doc := strings.Replace(usersListDoc,
		`condition: "users.status = :status"`,
		`condition: "users.status = :status AND users.id > :cursor"`, 1)

	res := mustValidate(t, doc, usersListSchemas())
	vs := findRule(res.Diagnostics, "filter-condition-params-declared")
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, ":cursor")
}

// ============================================================
// transform-when-param-declared
// ============================================================

func TestTransformWhenParam_Undeclared(t *testing.T) {
	doc := usersListDoc + `    - target: display_name
      type: CONDITIONAL_SOURCE
      condition:
        - param: verbose
          operator: eq
          value: "true"
      then_source: users.name
      else_source: users.nickname
`
	res := mustValidate(t, doc, usersListSchemas())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "transform-when-param-declared", d.Rule)
	assert.Contains(t, d.Message, `"verbose"`)
}

func TestTransformWhenParam_Declared(t *testing.T) {
	doc := usersListDoc + `    - target: display_name
      type: CONDITIONAL_SOURCE
      condition:
        - param: status
          operator: eq
          value: active
      then_source: users.name
      else_source: users.nickname
`
	res := mustValidate(t, doc, usersListSchemas())
	assert.Empty(t, res.Diagnostics)
}

// ============================================================
// array-source-table-consistency
// ============================================================

func TestArraySourceTable_MismatchWithChainTail(t *testing.T) {
	doc := strings.Replace(postsTagsDoc, "source_table: tags", "source_table: post_tags", 1)

	res := mustValidate(t, doc, postsTagsSchemas())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "array-source-table-consistency", d.Rule)
	assert.Contains(t, d.Message, `source_table "post_tags"`)
	assert.Contains(t, d.Message, `"tags"`)
}

func TestArraySourceTable_JoinOnlyUsesJoinTable(t *testing.T) {
	doc := `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
    - ./schema.dbml#tables["posts"]
usecase:
  name: user-posts
  response_mapping:
    - field: id
      source: users.id
    - field: posts
      type: array
      source_table: posts
      join:
        table: posts
        on: posts.user_id = users.id
      fields:
        - field: title
          source: posts.title
`
	schemas := usersListSchemas()
	schemas.API.Fields["posts"] = "array[object]"

	res := mustValidate(t, doc, schemas)
	assert.Empty(t, res.Diagnostics)
}

// ============================================================
// sort-column-allowlisted
// ============================================================

const sortedUsersDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
usecase:
  name: users-sorted
  response_mapping:
    - field: id
      source: users.id
  filters:
    - param: sort
      maps_to: ORDER_BY
      default_column: created_at
      default_direction: desc
      allowed_columns:
        - name
        - created_at
      allowed_directions:
        - asc
        - desc
`

func sortedUsersSchemas() *resolver.Schemas {
	return &resolver.Schemas{
		API: &resolver.APISchema{
			Fields:     map[string]string{"id": "integer"},
			Parameters: []string{"sort"},
		},
		Tables: &resolver.TableSchema{
			Tables: map[string]*resolver.Table{
				"users": resolver.NewTable("users", []string{"id", "name", "created_at"}, []string{"id"}),
			},
		},
	}
}

func TestSortColumnAllowlisted_DefaultAllowed(t *testing.T) {
	res := mustValidate(t, sortedUsersDoc, sortedUsersSchemas())
	assert.Empty(t, res.Diagnostics)
}

func TestSortColumnAllowlisted_DefaultOutsideAllowlist(t *testing.T) {
	doc := strings.Replace(sortedUsersDoc, "default_column: created_at", "default_column: signup_date", 1)

	res := mustValidate(t, doc, sortedUsersSchemas())
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "sort-column-allowlisted", d.Rule)
	assert.Contains(t, d.Message, `"signup_date"`)
}

func TestSortColumnAllowlisted_NoAllowlistNoCheck(t *testing.T) {
	doc := strings.Replace(sortedUsersDoc,
		"      allowed_columns:\n        - name\n        - created_at\n", "", 1)

	res := mustValidate(t, doc, sortedUsersSchemas())
	assert.Empty(t, res.Diagnostics)
}
