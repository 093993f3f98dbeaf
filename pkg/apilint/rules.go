package apilint

import (
	"fmt"
	"os"

	"github.com/daveshanley/vacuum/rulesets"
)

// defaultRuleSetYAML is the fieldmap ruleset. It layers mapping-oriented
// rules over vacuum's recommended OpenAPI set: a response a document cannot
// flatten into fields, or a parameter a filter cannot bind, is caught here
// rather than at resolution time.
const defaultRuleSetYAML = `extends: [[spectral:oas, recommended]]
documentationUrl: https://quobix.com/vacuum/rulesets/custom-rulesets
rules:
  fm-response-shape:
    description: mapped JSON responses must be objects or arrays of objects, with properties
    severity: error
    given: $
    then:
      function: checkResponseShape
  fm-success-response:
    description: every operation must declare a 2xx response for documents to bind to
    severity: error
    given: $
    then:
      function: checkSuccessResponse
  fm-param-typed:
    description: declared parameters must carry a schema type
    severity: error
    given: $
    then:
      function: checkParamTyped
  fm-param-snake-case:
    description: parameter names should be snake_case so filter params bind cleanly
    severity: warn
    given: $
    then:
      function: checkParamSnakeCase
  fm-array-items:
    description: array schemas must declare items for nested mappings to descend into
    severity: error
    given: $
    then:
      function: checkArrayItems
  fm-property-snake-case:
    description: response property names should be snake_case to match document fields
    severity: warn
    given: $
    then:
      function: checkPropertyNames
`

// DefaultRuleSet parses the fieldmap ruleset and resolves its extends chain
// against vacuum's bundled rules.
func DefaultRuleSet() (*rulesets.RuleSet, error) {
	rs, err := rulesets.CreateRuleSetFromData([]byte(defaultRuleSetYAML))
	if err != nil {
		return nil, fmt.Errorf("parse default ruleset: %w", err)
	}
	return rulesets.BuildDefaultRuleSets().GenerateRuleSetFromSuppliedRuleSet(rs), nil
}

// LoadRuleSet reads a custom vacuum ruleset from path, honoring its extends
// declarations. A custom ruleset replaces the default one wholesale; extend
// spectral:oas in the file to keep the bundled rules.
func LoadRuleSet(path string) (*rulesets.RuleSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by the caller
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", path, err)
	}
	rs, err := rulesets.CreateRuleSetFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse ruleset %s: %w", path, err)
	}
	return rulesets.BuildDefaultRuleSets().GenerateRuleSetFromSuppliedRuleSet(rs), nil
}
