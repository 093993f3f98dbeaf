// Package resolver loads the schema files a mapping document imports and
// resolves its reference expressions into concrete, read-only schema views.
//
// Two independent resolvers exist: one for the OpenAPI description the
// response fields are checked against, one for the DBML schema the source
// tables are checked against. Each caches parsed files by path, so a single
// resolver instance serves many documents without re-reading anything.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"fieldmap/internal/fetch"
	"fieldmap/internal/mapdoc"
)

// APISchema is the resolved shape of one API operation: the JSON response
// body's fields with their declared types, plus the parameter names the
// operation accepts. Read-only after resolution.
type APISchema struct {
	// Fields maps response body field names to their declared types. Empty
	// when the response declares no application/json object body.
	Fields map[string]string

	// Parameters lists the operation's parameter names in declaration
	// order, path-level parameters first.
	Parameters []string
}

// HasField reports whether the response body declares the given field.
func (s *APISchema) HasField(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// HasParameter reports whether the operation declares the given parameter.
func (s *APISchema) HasParameter(name string) bool {
	for _, p := range s.Parameters {
		if p == name {
			return true
		}
	}
	return false
}

// FieldNames returns the response field names in sorted order.
func (s *APISchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// APIResolver resolves API references against OpenAPI description files.
type APIResolver struct {
	source *fetch.Source

	mu    sync.Mutex
	cache map[string]*openapi3.T
}

// NewAPIResolver creates an empty resolver reading local files only. Parsed
// files are cached for the resolver's lifetime.
func NewAPIResolver() *APIResolver {
	return NewAPIResolverWithSource(fetch.Local())
}

// NewAPIResolverWithSource creates a resolver reading through the given
// schema source.
func NewAPIResolverWithSource(source *fetch.Source) *APIResolver {
	return &APIResolver{source: source, cache: make(map[string]*openapi3.T)}
}

// Resolve locates the operation the reference addresses and returns its
// response schema. The reference's file path is taken relative to baseDir;
// s3://, gs://, and az:// references pass through to the schema source.
func (r *APIResolver) Resolve(ctx context.Context, baseDir string, ref mapdoc.APIRef) (*APISchema, error) {
	spec, err := r.load(ctx, r.source.Abs(baseDir, ref.File))
	if err != nil {
		return nil, err
	}

	pathItem := spec.Paths.Value(ref.Path)
	if pathItem == nil {
		return nil, resolutionErrorf(ref.File, "path %q not found", ref.Path)
	}
	op := pathItem.GetOperation(strings.ToUpper(ref.Method))
	if op == nil {
		return nil, resolutionErrorf(ref.File, "method %s not defined for path %q", ref.Method, ref.Path)
	}

	schema := &APISchema{Fields: map[string]string{}}

	// Path-level parameters apply to every operation under the path.
	var params []*openapi3.ParameterRef
	params = append(params, pathItem.Parameters...)
	params = append(params, op.Parameters...)
	for _, pRef := range params {
		if pRef.Value != nil {
			schema.Parameters = append(schema.Parameters, pRef.Value.Name)
		}
	}

	resp := op.Responses.Value(ref.Status)
	if resp == nil || resp.Value == nil {
		return nil, resolutionErrorf(ref.File, "response %q not defined for %s %q", ref.Status, ref.Method, ref.Path)
	}

	// A response without an application/json object body resolves to an
	// empty field set, not an error.
	ct, ok := resp.Value.Content["application/json"]
	if !ok || ct.Schema == nil || ct.Schema.Value == nil {
		return schema, nil
	}
	for name, propRef := range ct.Schema.Value.Properties {
		schema.Fields[name] = propertyType(propRef)
	}
	return schema, nil
}

// load parses the OpenAPI file at path, serving repeats from cache.
func (r *APIResolver) load(ctx context.Context, path string) (*openapi3.T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec, ok := r.cache[path]; ok {
		return spec, nil
	}

	data, err := r.source.Read(ctx, path)
	if err != nil {
		return nil, &ResolutionError{File: path, Msg: fmt.Sprintf("read API description: %v", err), Err: err}
	}
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, &ResolutionError{File: path, Msg: fmt.Sprintf("load OpenAPI description: %v", err), Err: err}
	}
	if spec.Paths == nil {
		return nil, resolutionErrorf(path, "OpenAPI description declares no paths")
	}
	r.cache[path] = spec
	return spec, nil
}

// propertyType renders a response property's declared type. Arrays include
// their item type, untyped schemas fall back to "object".
func propertyType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil || len(*ref.Value.Type) == 0 {
		return "object"
	}
	t := (*ref.Value.Type)[0]
	if t == "array" && ref.Value.Items != nil {
		return t + "[" + propertyType(ref.Value.Items) + "]"
	}
	return t
}
