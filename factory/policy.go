/*
Package factory provides YAML/JSON to Go policy table conversion.

PURPOSE:
  Converts policy documents into a fundamentals.PolicyTable. Aggregation
  rules can then be tuned per deployment without code changes: an analyst
  edits the document, the server picks it up at start.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  statements:
    Balance_Sheet:
      default: latest
      overrides:
        commonStockSharesOutstanding: average
        treasuryStock: average
    Income_Statement:
      overrides:
        grossProfitMargin: average
    Cash_Flow:
      default: sum

LAYERING:
  A document is applied on top of fundamentals.DefaultPolicyTable(). Kinds
  or metrics it does not mention keep their built-in policy.

VALIDATION:
  - Statement names must be Balance_Sheet, Income_Statement or Cash_Flow
    (case-insensitive)
  - Policies must be sum, latest or average
  - Metric names must be non-empty

USAGE:
  factory := NewPolicyFactory()

  table, err := factory.LoadFile("policies.yaml")
  table, err := factory.ParsePolicy(jsonString)

  engine := fundamentals.NewRollupEngine(table)

SEE ALSO:
  - fundamentals/policy.go: PolicyTable and combinators
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyDocument is the serialized form of a policy table.
type PolicyDocument struct {
	Statements map[string]StatementPolicyDocument `json:"statements" yaml:"statements"`
}

// StatementPolicyDocument configures one statement kind.
type StatementPolicyDocument struct {
	Default   string            `json:"default,omitempty" yaml:"default,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// PolicyFactory creates policy tables from documents.
type PolicyFactory struct {
	base *fundamentals.PolicyTable
}

// NewPolicyFactory layers documents on the built-in table.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{base: fundamentals.DefaultPolicyTable()}
}

// ParsePolicy parses a JSON document.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*fundamentals.PolicyTable, error) {
	var doc PolicyDocument
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromDocument(doc)
}

// ParseYAML parses a YAML document.
func (f *PolicyFactory) ParseYAML(data []byte) (*fundamentals.PolicyTable, error) {
	var doc PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return f.FromDocument(doc)
}

// LoadFile reads a .json, .yaml or .yml document. An empty path returns the
// built-in table.
func (f *PolicyFactory) LoadFile(path string) (*fundamentals.PolicyTable, error) {
	if path == "" {
		return f.base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return f.ParsePolicy(string(data))
	case ".yaml", ".yml":
		return f.ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported policy file extension: %s", filepath.Ext(path))
	}
}

// FromDocument applies a document to the base table.
func (f *PolicyFactory) FromDocument(doc PolicyDocument) (*fundamentals.PolicyTable, error) {
	table := f.base

	// Sorted for deterministic error messages
	names := make([]string, 0, len(doc.Statements))
	for name := range doc.Statements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sd := doc.Statements[name]
		kind, err := fundamentals.ParseStatementKind(name)
		if err != nil {
			return nil, err
		}

		if sd.Default != "" {
			p, err := fundamentals.ParseAggregationPolicy(sd.Default)
			if err != nil {
				return nil, fmt.Errorf("%s default: %w", kind, err)
			}
			table = table.WithDefault(kind, p)
		}

		for metric, policy := range sd.Overrides {
			if strings.TrimSpace(metric) == "" {
				return nil, fmt.Errorf("%s: empty metric name", kind)
			}
			p, err := fundamentals.ParseAggregationPolicy(policy)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", kind, metric, err)
			}
			table = table.With(kind, metric, p)
		}
	}

	return table, nil
}

// ToDocument converts a table back to its document form.
func (f *PolicyFactory) ToDocument(table *fundamentals.PolicyTable) PolicyDocument {
	doc := PolicyDocument{Statements: make(map[string]StatementPolicyDocument, len(fundamentals.StatementKinds))}
	for _, kind := range fundamentals.StatementKinds {
		sd := StatementPolicyDocument{
			Default:   string(table.Default(kind)),
			Overrides: make(map[string]string),
		}
		for metric, p := range table.Overrides(kind) {
			sd.Overrides[metric] = string(p)
		}
		doc.Statements[string(kind)] = sd
	}
	return doc
}
