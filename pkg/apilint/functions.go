package apilint

import (
	"fmt"
	"regexp"

	"github.com/daveshanley/vacuum/model"
	"go.yaml.in/yaml/v4"
)

// customFunctions returns the map of custom vacuum rule functions, keyed by
// the names the ruleset references in `then.function`.
func customFunctions() map[string]model.RuleFunction {
	return map[string]model.RuleFunction{
		"checkResponseShape":   &fnCheckResponseShape{},
		"checkSuccessResponse": &fnCheckSuccessResponse{},
		"checkParamTyped":      &fnCheckParamTyped{},
		"checkParamSnakeCase":  &fnCheckParamSnakeCase{},
		"checkArrayItems":      &fnCheckArrayItems{},
		"checkPropertyNames":   &fnCheckPropertyNames{},
	}
}

// === YAML helpers ===

func yGet(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(m.Content)-1; i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func yOpID(op *yaml.Node) string {
	n := yGet(op, "operationId")
	if n != nil {
		return n.Value
	}
	return ""
}

var httpMethodSet = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

var snakeRe = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

type opVisitor = func(path, method string, op *yaml.Node)

func forEachOp(root *yaml.Node, fn opVisitor) {
	paths := yGet(root, "paths")
	if paths == nil {
		return
	}
	for i := 0; i < len(paths.Content)-1; i += 2 {
		pathKey := paths.Content[i].Value
		pathItem := paths.Content[i+1]
		if pathItem.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j < len(pathItem.Content)-1; j += 2 {
			method := pathItem.Content[j].Value
			if httpMethodSet[method] {
				fn(pathKey, method, pathItem.Content[j+1])
			}
		}
	}
}

// forEachSuccess invokes fn for every 2xx response of an operation.
func forEachSuccess(op *yaml.Node, fn func(status string, resp *yaml.Node)) {
	responses := yGet(op, "responses")
	if responses == nil {
		return
	}
	for i := 0; i < len(responses.Content)-1; i += 2 {
		status := responses.Content[i].Value
		if isSuccessStatus(status) {
			fn(status, responses.Content[i+1])
		}
	}
}

func isSuccessStatus(status string) bool {
	if status == "2XX" || status == "2xx" {
		return true
	}
	return len(status) == 3 && status[0] == '2'
}

// forEachParam invokes fn for every inline (non-$ref) parameter declared on
// an operation or its path item. owner identifies the operation or path in
// messages.
func forEachParam(root *yaml.Node, fn func(owner string, param *yaml.Node)) {
	visit := func(owner string, params *yaml.Node) {
		if params == nil || params.Kind != yaml.SequenceNode {
			return
		}
		for _, p := range params.Content {
			if p.Kind != yaml.MappingNode || yGet(p, "$ref") != nil {
				continue
			}
			fn(owner, p)
		}
	}
	paths := yGet(root, "paths")
	if paths == nil {
		return
	}
	for i := 0; i < len(paths.Content)-1; i += 2 {
		pathKey := paths.Content[i].Value
		pathItem := paths.Content[i+1]
		if pathItem.Kind != yaml.MappingNode {
			continue
		}
		visit(pathKey, yGet(pathItem, "parameters"))
		for j := 0; j < len(pathItem.Content)-1; j += 2 {
			method := pathItem.Content[j].Value
			if !httpMethodSet[method] {
				continue
			}
			op := pathItem.Content[j+1]
			owner := yOpID(op)
			if owner == "" {
				owner = method + " " + pathKey
			}
			visit(owner, yGet(op, "parameters"))
		}
	}
}

// inlineJSONSchema returns the inline application/json schema of a response
// or requestBody node. $ref schemas return nil; those resolve against
// components and are out of scope here.
func inlineJSONSchema(obj *yaml.Node) *yaml.Node {
	content := yGet(obj, "content")
	if content == nil {
		return nil
	}
	appJSON := yGet(content, "application/json")
	if appJSON == nil {
		return nil
	}
	schema := yGet(appJSON, "schema")
	if schema == nil || yGet(schema, "$ref") != nil {
		return nil
	}
	return schema
}

func rootNode(nodes []*yaml.Node) *yaml.Node {
	if len(nodes) == 0 {
		return nil
	}
	n := nodes[0]
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func makeResult(msg, path, ruleID string, node *yaml.Node, ctx model.RuleFunctionContext) model.RuleFunctionResult {
	return model.RuleFunctionResult{
		Message:   msg,
		Path:      path,
		RuleId:    ruleID,
		StartNode: node,
		EndNode:   node,
		Rule:      ctx.Rule,
	}
}

// ================================================================
// fm-response-shape: success responses must flatten into fields
// ================================================================

type fnCheckResponseShape struct{}

func (f *fnCheckResponseShape) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkResponseShape"}
}
func (f *fnCheckResponseShape) GetCategory() string { return model.CategorySchemas }

func (f *fnCheckResponseShape) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult
	forEachOp(root, func(path, method string, op *yaml.Node) {
		opID := yOpID(op)
		if opID == "" {
			opID = method + " " + path
		}
		forEachSuccess(op, func(status string, resp *yaml.Node) {
			schema := inlineJSONSchema(resp)
			if schema == nil {
				return
			}
			body := schema
			if t := yGet(schema, "type"); t != nil && t.Value == "array" {
				items := yGet(schema, "items")
				if items == nil || yGet(items, "$ref") != nil {
					return
				}
				body = items
			}
			jsonPath := fmt.Sprintf("$.paths.%s.%s.responses.%s", path, method, status)
			bodyType := yGet(body, "type")
			if bodyType != nil && bodyType.Value != "object" {
				results = append(results, makeResult(
					fmt.Sprintf("operation %q response %s is a bare %s; field mappings bind to named properties", opID, status, bodyType.Value),
					jsonPath, "fm-response-shape", body, ctx))
				return
			}
			if yGet(body, "properties") == nil && yGet(body, "additionalProperties") == nil {
				results = append(results, makeResult(
					fmt.Sprintf("operation %q response %s declares an object without properties", opID, status),
					jsonPath, "fm-response-shape", body, ctx))
			}
		})
	})
	return results
}

// ================================================================
// fm-success-response: every operation must declare a 2xx response
// ================================================================

type fnCheckSuccessResponse struct{}

func (f *fnCheckSuccessResponse) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkSuccessResponse"}
}
func (f *fnCheckSuccessResponse) GetCategory() string { return model.CategoryOperations }

func (f *fnCheckSuccessResponse) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult
	forEachOp(root, func(path, method string, op *yaml.Node) {
		found := false
		forEachSuccess(op, func(string, *yaml.Node) { found = true })
		if found {
			return
		}
		opID := yOpID(op)
		if opID == "" {
			opID = method + " " + path
		}
		results = append(results, makeResult(
			fmt.Sprintf("operation %q declares no 2xx response", opID),
			fmt.Sprintf("$.paths.%s.%s", path, method),
			"fm-success-response", op, ctx))
	})
	return results
}

// ================================================================
// fm-param-typed: inline parameters must carry a typed schema
// ================================================================

type fnCheckParamTyped struct{}

func (f *fnCheckParamTyped) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkParamTyped"}
}
func (f *fnCheckParamTyped) GetCategory() string { return model.CategoryOperations }

func (f *fnCheckParamTyped) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult
	forEachParam(root, func(owner string, param *yaml.Node) {
		nameNode := yGet(param, "name")
		if nameNode == nil {
			return
		}
		// Parameters serialized via content don't use schema.
		if yGet(param, "content") != nil {
			return
		}
		schema := yGet(param, "schema")
		if schema != nil && yGet(schema, "$ref") != nil {
			return
		}
		if schema == nil || yGet(schema, "type") == nil {
			results = append(results, makeResult(
				fmt.Sprintf("%s: parameter %q has no typed schema", owner, nameNode.Value),
				"$", "fm-param-typed", param, ctx))
		}
	})
	return results
}

// ================================================================
// fm-param-snake-case: parameter names should be snake_case
// ================================================================

type fnCheckParamSnakeCase struct{}

func (f *fnCheckParamSnakeCase) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkParamSnakeCase"}
}
func (f *fnCheckParamSnakeCase) GetCategory() string { return model.CategoryOperations }

func (f *fnCheckParamSnakeCase) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult
	forEachParam(root, func(owner string, param *yaml.Node) {
		nameNode := yGet(param, "name")
		if nameNode == nil || nameNode.Value == "" {
			return
		}
		if !snakeRe.MatchString(nameNode.Value) {
			results = append(results, makeResult(
				fmt.Sprintf("%s: parameter %q is not snake_case", owner, nameNode.Value),
				"$", "fm-param-snake-case", nameNode, ctx))
		}
	})
	return results
}

// ================================================================
// fm-array-items: array schemas must declare items
// ================================================================

type fnCheckArrayItems struct{}

func (f *fnCheckArrayItems) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkArrayItems"}
}
func (f *fnCheckArrayItems) GetCategory() string { return model.CategorySchemas }

func (f *fnCheckArrayItems) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult

	var walk func(n *yaml.Node, context string)
	walk = func(n *yaml.Node, context string) {
		if n == nil {
			return
		}
		if n.Kind == yaml.MappingNode {
			t := yGet(n, "type")
			if t != nil && t.Value == "array" && yGet(n, "items") == nil {
				results = append(results, makeResult(
					fmt.Sprintf("array schema%s has no items; array mappings need an element shape", context),
					"$", "fm-array-items", n, ctx))
			}
		}
		for _, c := range n.Content {
			walk(c, context)
		}
	}

	schemas := yGet(yGet(root, "components"), "schemas")
	if schemas != nil {
		for i := 0; i < len(schemas.Content)-1; i += 2 {
			schemaName := schemas.Content[i].Value
			walk(schemas.Content[i+1], fmt.Sprintf(" in schema %q", schemaName))
		}
	}
	walk(yGet(root, "paths"), "")
	return results
}

// ================================================================
// fm-property-snake-case: property names should be snake_case
// ================================================================

type fnCheckPropertyNames struct{}

func (f *fnCheckPropertyNames) GetSchema() model.RuleFunctionSchema {
	return model.RuleFunctionSchema{Name: "checkPropertyNames"}
}
func (f *fnCheckPropertyNames) GetCategory() string { return model.CategorySchemas }

func (f *fnCheckPropertyNames) RunRule(nodes []*yaml.Node, ctx model.RuleFunctionContext) []model.RuleFunctionResult {
	root := rootNode(nodes)
	if root == nil {
		return nil
	}
	var results []model.RuleFunctionResult

	var walk func(n *yaml.Node, context string)
	walk = func(n *yaml.Node, context string) {
		if n == nil {
			return
		}
		if n.Kind == yaml.MappingNode {
			props := yGet(n, "properties")
			if props != nil && props.Kind == yaml.MappingNode {
				for i := 0; i < len(props.Content)-1; i += 2 {
					key := props.Content[i]
					if !snakeRe.MatchString(key.Value) {
						results = append(results, makeResult(
							fmt.Sprintf("property %q%s is not snake_case; mapping field paths address properties by name", key.Value, context),
							"$", "fm-property-snake-case", key, ctx))
					}
				}
			}
		}
		for _, c := range n.Content {
			walk(c, context)
		}
	}

	schemas := yGet(yGet(root, "components"), "schemas")
	if schemas != nil {
		for i := 0; i < len(schemas.Content)-1; i += 2 {
			schemaName := schemas.Content[i].Value
			walk(schemas.Content[i+1], fmt.Sprintf(" in schema %q", schemaName))
		}
	}
	walk(yGet(root, "paths"), "")
	return results
}
