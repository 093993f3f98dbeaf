package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns the captured output.
// Uses a goroutine to read concurrently, avoiding pipe buffer deadlocks.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

const testAPIYAML = `
openapi: "3.0.0"
info:
  title: Users API
  version: "1.0"
paths:
  /users:
    get:
      summary: List users
      parameters:
        - name: status
          in: query
          schema:
            type: string
      responses:
        "200":
          description: OK
          content:
            application/json:
              schema:
                type: object
                properties:
                  id:
                    type: integer
                  name:
                    type: string
`

const testDBML = `
Table users {
  id integer [pk, increment]
  name varchar
  status varchar
}
`

const testValidDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
usecase:
  name: users-list
  summary: Users with names
  response_mapping:
    - field: id
      source: users.id
    - field: name
      source: users.name
`

const testBrokenDoc = `
version: "0.1"
import:
  openapi: ./api.yaml#paths["/users"].get.responses["200"]
  dbml:
    - ./schema.dbml#tables["users"]
usecase:
  name: users-broken
  response_mapping:
    - field: id
      source: users.id
    - field: display_name
      source: users.name
`

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

// writeFixtureWorkspace lays a mapping document beside its schema imports
// and returns the document path.
func writeFixtureWorkspace(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"api.yaml":          testAPIYAML,
		"schema.dbml":       testDBML,
		"doc.fieldmap.yaml": doc,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return filepath.Join(dir, "doc.fieldmap.yaml")
}
