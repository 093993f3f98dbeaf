package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/graph"
	"fieldmap/internal/mapdoc"
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

func renderDoc(t *testing.T, yaml string) string {
	t.Helper()
	doc, err := mapdoc.Parse(strings.NewReader(yaml), "test.fieldmap.yaml")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, graph.Build(doc)))
	return buf.String()
}

func TestRender_PageScaffold(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	assert.Contains(t, html, "<!doctype html>")
	assert.Contains(t, html, "<title>users-list | fieldmap</title>")
	assert.Contains(t, html, "Paginated user list with post counts")
	assert.Contains(t, html, "Response Fields")
	assert.Contains(t, html, "Joins &amp; Transforms")
	assert.Contains(t, html, "<h2>Tables</h2>")
	assert.Contains(t, html, "starfederation/datastar")
}

func TestRender_FieldCardAttributes(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	assert.Contains(t, html, `data-field="post_count"`)
	assert.Contains(t, html, `data-join-type="aggregate"`)
	assert.Contains(t, html, `data-tables="posts"`)
	assert.Contains(t, html, `data-join-type="simple"`)
	assert.Contains(t, html, `>COUNT</span>`)
}

func TestRender_JoinAndTransformColumn(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	assert.Contains(t, html, "LEFT JOIN posts ON posts.user_id = users.id")
	assert.Contains(t, html, "Transforms:")
	assert.Contains(t, html, ">COALESCE</span>")
	// the two plain fields have nothing to show in the middle column
	assert.Contains(t, html, "No join/transform.")
}

func TestRender_NestedArrayDepth(t *testing.T) {
	html := renderDoc(t, postsTagsDoc)

	assert.Contains(t, html, `data-join-type="join-chain"`)
	assert.Contains(t, html, ">array</span>")
	assert.Contains(t, html, "response-card depth-1")
	assert.Contains(t, html, "LEFT JOIN post_tags ON posts.id = post_tags.post_id")
	assert.Contains(t, html, "JOIN tags ON post_tags.tag_id = tags.id")
}

func TestRender_TableCards(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	assert.Contains(t, html, `data-table="users"`)
	assert.Contains(t, html, `data-table="posts"`)
	assert.Contains(t, html, "Referenced by 2 fields")
	assert.Contains(t, html, "Referenced by 1 field<")
}

func TestRender_AliasedTableDisplay(t *testing.T) {
	doc := strings.Replace(postsTagsDoc, "source_table: tags", "source_table: t", 1)
	doc = strings.Replace(doc,
		"- table: tags\n          on: post_tags.tag_id = tags.id",
		"- table: tags\n          on: post_tags.tag_id = t.id\n          alias: t", 1)
	doc = strings.Replace(doc, "source: tags.id", "source: t.id", 1)
	doc = strings.Replace(doc, "source: tags.label", "source: t.label", 1)

	html := renderDoc(t, doc)

	assert.Contains(t, html, "tags (as t)")
	assert.Contains(t, html, "JOIN tags ON post_tags.tag_id = t.id AS t")
	// arrows target the physical table name
	assert.Contains(t, html, `data-table="tags"`)
}

func TestRender_EmptyStates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, &graph.Model{Usecase: "empty-doc"}))
	html := buf.String()

	assert.Contains(t, html, "No response mappings.")
	assert.Contains(t, html, "No joins or transforms.")
	assert.Contains(t, html, "No tables imported.")
}

func TestRender_FlowScriptAndFilter(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	assert.Contains(t, html, `id="flow-svg"`)
	assert.Contains(t, html, "drawFlows")
	assert.Contains(t, html, "setupHover")
	assert.Contains(t, html, "data-bind")
	assert.Contains(t, html, "data-show")
}

func TestRender_Legend(t *testing.T) {
	html := renderDoc(t, usersListDoc)

	for _, label := range []string{"Simple", "JOIN", "JOIN Chain", "Aggregate"} {
		assert.Contains(t, html, label)
	}
	for _, color := range []string{"#9ca3af", "#d4a017", "#3b82f6", "#8b5cf6"} {
		assert.Contains(t, html, color)
	}
}
