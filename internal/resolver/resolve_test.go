package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/mapdoc"
)

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.yaml"), []byte(usersAPI), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.dbml"), []byte(blogDBML), 0644))

	doc := &mapdoc.Document{
		API: mapdoc.APIRef{File: "./api.yaml", Path: "/users", Method: "get", Status: "200"},
		Tables: []mapdoc.TableRef{
			{File: "./schema.dbml", Table: "users"},
			{File: "./schema.dbml", Table: "posts"},
		},
	}

	schemas, err := New().Resolve(context.Background(), dir, doc)
	require.NoError(t, err)

	require.NotNil(t, schemas.API)
	assert.True(t, schemas.API.HasField("name"))
	require.NotNil(t, schemas.Tables)
	assert.True(t, schemas.Tables.HasTable("posts"))
	assert.Len(t, schemas.Tables.ForeignKeys, 1)
}

func TestResolver_ResolveFirstErrorWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.yaml"), []byte(usersAPI), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.dbml"), []byte(blogDBML), 0644))

	doc := &mapdoc.Document{
		API: mapdoc.APIRef{File: "./api.yaml", Path: "/users", Method: "get", Status: "200"},
		Tables: []mapdoc.TableRef{
			{File: "./schema.dbml", Table: "missing"},
		},
	}

	_, err := New().Resolve(context.Background(), dir, doc)
	require.Error(t, err)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, err.Error(), `table "missing" not found`)
}

func TestResolver_ResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &mapdoc.Document{
		API: mapdoc.APIRef{File: "./api.yaml", Path: "/users", Method: "get", Status: "200"},
	}
	_, err := New().Resolve(ctx, t.TempDir(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
