package openapi

import (
	"bytes"
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"
)

// Limits on converting one component schema tree.
const (
	maxSchemaDepth = 12
	maxSchemaNodes = 2000
)

// Schema is the JSON Schema subset used for tool input schemas. Properties
// keep insertion order so serialized schemas are stable.
type Schema struct {
	Type        []string
	Format      string
	Title       string
	Description string
	Pattern     string
	Enum        []any
	Default     any
	Minimum     *float64
	Maximum     *float64
	Nullable    bool
	Items       *Schema
	OneOf       []*Schema
	AnyOf       []*Schema
	AllOf       []*Schema
	Required    []string

	// Closed emits "additionalProperties": false.
	Closed bool

	props []namedSchema
}

type namedSchema struct {
	name   string
	schema *Schema
}

// ObjectSchema returns an empty object schema.
func ObjectSchema() *Schema {
	return &Schema{Type: []string{"object"}}
}

// TypedSchema returns a schema with a single type.
func TypedSchema(typ string) *Schema {
	return &Schema{Type: []string{typ}}
}

// SetProperty adds or replaces a property, keeping its original position.
func (s *Schema) SetProperty(name string, prop *Schema) *Schema {
	for i := range s.props {
		if s.props[i].name == name {
			s.props[i].schema = prop
			return s
		}
	}
	s.props = append(s.props, namedSchema{name: name, schema: prop})
	return s
}

// Property returns a property schema or nil.
func (s *Schema) Property(name string) *Schema {
	if s == nil {
		return nil
	}
	for _, p := range s.props {
		if p.name == name {
			return p.schema
		}
	}
	return nil
}

// PropertyNames returns property names in insertion order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, len(s.props))
	for i, p := range s.props {
		names[i] = p.name
	}
	return names
}

// HasProperties reports whether any property was set.
func (s *Schema) HasProperties() bool { return len(s.props) > 0 }

// Require appends name to the required list once.
func (s *Schema) Require(name string) *Schema {
	for _, r := range s.Required {
		if r == name {
			return s
		}
	}
	s.Required = append(s.Required, name)
	return s
}

// IsRequired reports whether name is in the required list.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

type schemaField struct {
	key string
	val any
}

// MarshalJSON renders the schema with a fixed key order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var fields []schemaField
	add := func(key string, v any) { fields = append(fields, schemaField{key, v}) }

	switch len(s.Type) {
	case 0:
	case 1:
		add("type", s.Type[0])
	default:
		add("type", s.Type)
	}
	if s.Format != "" {
		add("format", s.Format)
	}
	if s.Title != "" {
		add("title", s.Title)
	}
	if s.Description != "" {
		add("description", s.Description)
	}
	if s.Pattern != "" {
		add("pattern", s.Pattern)
	}
	if len(s.Enum) > 0 {
		add("enum", s.Enum)
	}
	if s.Default != nil {
		add("default", s.Default)
	}
	if s.Minimum != nil {
		add("minimum", *s.Minimum)
	}
	if s.Maximum != nil {
		add("maximum", *s.Maximum)
	}
	if s.Nullable {
		add("nullable", true)
	}
	if s.Items != nil {
		add("items", s.Items)
	}
	if len(s.OneOf) > 0 {
		add("oneOf", s.OneOf)
	}
	if len(s.AnyOf) > 0 {
		add("anyOf", s.AnyOf)
	}
	if len(s.AllOf) > 0 {
		add("allOf", s.AllOf)
	}
	if s.props != nil || s.isObject() {
		add("properties", orderedProps(s.props))
	}
	if len(s.Required) > 0 {
		add("required", s.Required)
	}
	if s.Closed {
		add("additionalProperties", false)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		v, err := json.Marshal(f.val)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(f.key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schema) isObject() bool {
	return len(s.Type) == 1 && s.Type[0] == "object" && s.Closed
}

type orderedProps []namedSchema

func (p orderedProps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(prop.name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(prop.schema)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func floatPtr(v float64) *float64 { return &v }

// schemaFromRef converts an OpenAPI schema to a Schema. A component that
// references itself, directly or through others, is expanded once; the
// inner reference becomes a type-only stub.
func schemaFromRef(ref *openapi3.SchemaRef) *Schema {
	c := &schemaConverter{active: make(map[string]bool), budget: maxSchemaNodes}
	return c.convert(ref, 0)
}

type schemaConverter struct {
	// active holds the component refs on the current descent path.
	active map[string]bool
	budget int
}

func (c *schemaConverter) convert(ref *openapi3.SchemaRef, depth int) *Schema {
	if ref == nil || ref.Value == nil {
		return ObjectSchema()
	}
	src := ref.Value
	if depth >= maxSchemaDepth || c.budget <= 0 || (ref.Ref != "" && c.active[ref.Ref]) {
		return stubSchema(src)
	}
	c.budget--
	if ref.Ref != "" {
		c.active[ref.Ref] = true
		defer delete(c.active, ref.Ref)
	}

	out := &Schema{
		Format:      src.Format,
		Title:       src.Title,
		Description: src.Description,
		Pattern:     src.Pattern,
		Enum:        src.Enum,
		Default:     src.Default,
		Minimum:     src.Min,
		Maximum:     src.Max,
		Nullable:    src.Nullable,
	}
	if src.Type != nil {
		out.Type = append([]string(nil), src.Type.Slice()...)
	}
	if src.Items != nil {
		out.Items = c.convert(src.Items, depth+1)
	}
	for _, r := range src.OneOf {
		out.OneOf = append(out.OneOf, c.convert(r, depth+1))
	}
	for _, r := range src.AnyOf {
		out.AnyOf = append(out.AnyOf, c.convert(r, depth+1))
	}
	for _, r := range src.AllOf {
		out.AllOf = append(out.AllOf, c.convert(r, depth+1))
	}
	if len(src.Properties) > 0 {
		for _, name := range sortedKeys(src.Properties) {
			out.SetProperty(name, c.convert(src.Properties[name], depth+1))
		}
	}
	if len(src.Required) > 0 {
		out.Required = append([]string(nil), src.Required...)
	}
	if has := src.AdditionalProperties.Has; has != nil && !*has {
		out.Closed = true
	}
	return out
}

// stubSchema keeps only the type of src.
func stubSchema(src *openapi3.Schema) *Schema {
	out := &Schema{}
	if src.Type != nil {
		out.Type = append([]string(nil), src.Type.Slice()...)
	}
	return out
}
