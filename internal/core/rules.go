package core

// rules.go loads the validation rule catalog.
//
// A catalog is a mapping from field name to {required, type, regex}. It can be
// written as JSON or YAML; both are decoded through yaml.v3 so declaration
// order survives, and both are checked against rules.schema.json before any
// rule is compiled. Patterns are anchored at the start of the value only, the
// same way a prefix match works: "^\d{4}" matches "2024-01-01 extra".

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed rules.json
var defaultRules []byte

//go:embed rules.schema.json
var rulesSchema []byte

const rulesSchemaURL = "https://regingest.local/rules.schema.json"

// FieldType is the declared type of a catalog field.
type FieldType string

const (
	TypeAny     FieldType = ""
	TypeString  FieldType = "string"
	TypeInt     FieldType = "int"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeAny, TypeString, TypeInt, TypeFloat, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// Rule constrains a single field.
type Rule struct {
	Field    string
	Required bool
	Type     FieldType
	Pattern  string

	regex *regexp.Regexp
}

// Matches reports whether s satisfies the rule's pattern. Rules without a
// pattern match everything.
func (r Rule) Matches(s string) bool {
	if r.regex == nil {
		return true
	}
	return r.regex.MatchString(s)
}

// Catalog is an immutable, ordered set of rules.
type Catalog struct {
	rules []Rule
	index map[string]int
}

// NewCatalog compiles rules in the given order. Field names must be unique.
func NewCatalog(rules ...Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}
	for _, r := range rules {
		if strings.TrimSpace(r.Field) == "" {
			return nil, fmt.Errorf("rule catalog: empty field name")
		}
		if _, dup := c.index[r.Field]; dup {
			return nil, fmt.Errorf("rule catalog: duplicate field %q", r.Field)
		}
		if !r.Type.valid() {
			return nil, fmt.Errorf("rule catalog: field %q: unknown type %q", r.Field, r.Type)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile("^(?:" + r.Pattern + ")")
			if err != nil {
				return nil, fmt.Errorf("rule catalog: field %q: invalid regex: %w", r.Field, err)
			}
			r.regex = re
		}
		c.index[r.Field] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	return c, nil
}

// MustCatalog is NewCatalog for fixed rule sets.
func MustCatalog(rules ...Rule) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns the rules in declaration order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Rule returns the rule for a field.
func (c *Catalog) Rule(field string) (Rule, bool) {
	i, ok := c.index[field]
	if !ok {
		return Rule{}, false
	}
	return c.rules[i], true
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

// DateFields returns the names of fields declared as dates.
func (c *Catalog) DateFields() []string {
	var out []string
	for _, r := range c.rules {
		if r.Type == TypeDate {
			out = append(out, r.Field)
		}
	}
	return out
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultRules)
}

// LoadCatalog reads a catalog file. An empty path loads the embedded catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

type ruleDoc struct {
	Required bool   `yaml:"required"`
	Type     string `yaml:"type"`
	Regex    string `yaml:"regex"`
}

// ParseCatalog decodes a JSON or YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	if err := checkCatalogSchema(data); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rule catalog: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("rule catalog: expected a mapping of field names")
	}

	rules := make([]Rule, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var rd ruleDoc
		if err := root.Content[i+1].Decode(&rd); err != nil {
			return nil, fmt.Errorf("rule catalog: field %q: %w", name, err)
		}
		rules = append(rules, Rule{
			Field:    name,
			Required: rd.Required,
			Type:     FieldType(rd.Type),
			Pattern:  rd.Regex,
		})
	}
	return NewCatalog(rules...)
}

func checkCatalogSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(rulesSchemaURL, bytes.NewReader(rulesSchema)); err != nil {
		return fmt.Errorf("rule catalog schema: %w", err)
	}
	schema, err := compiler.Compile(rulesSchemaURL)
	if err != nil {
		return fmt.Errorf("rule catalog schema: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rule catalog: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("rule catalog: %w", err)
	}
	return nil
}
