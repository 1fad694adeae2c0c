package openapi

import (
	"fmt"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// verbs lists the scanned HTTP methods in emission order. CONNECT is not a
// callable operation and is skipped.
var verbs = []string{"get", "post", "put", "patch", "delete", "head", "options", "trace"}

// preferredMediaTypes is checked before any other request body media type.
var preferredMediaTypes = []string{
	"application/json",
	"application/*+json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
	"*/*",
}

// parameterGroups maps a parameter location to its argument object.
var parameterGroups = []struct {
	in  string
	key string
}{
	{openapi3.ParameterInPath, "path"},
	{openapi3.ParameterInQuery, "query"},
	{openapi3.ParameterInHeader, "headers"},
	{openapi3.ParameterInCookie, "cookies"},
}

const (
	defaultTimeoutSec = 30
	minTimeoutSec     = 1
	maxTimeoutSec     = 120
)

type verbOperation struct {
	verb string
	op   *openapi3.Operation
}

func operationsOf(item *openapi3.PathItem) []verbOperation {
	ops := []*openapi3.Operation{item.Get, item.Post, item.Put, item.Patch, item.Delete, item.Head, item.Options, item.Trace}
	var out []verbOperation
	for i, op := range ops {
		if op != nil {
			out = append(out, verbOperation{verbs[i], op})
		}
	}
	return out
}

func sortedPaths(doc *openapi3.T) ([]string, map[string]*openapi3.PathItem) {
	if doc == nil || doc.Paths == nil {
		return nil, nil
	}
	items := doc.Paths.Map()
	return sortedKeys(items), items
}

// CountOperations counts operations across every path of doc.
func CountOperations(doc *openapi3.T) int {
	paths, items := sortedPaths(doc)
	total := 0
	for _, p := range paths {
		if item := items[p]; item != nil {
			total += len(operationsOf(item))
		}
	}
	return total
}

// SynthesizeTools turns every operation in doc into a ToolDefinition. Paths
// are visited in lexical order and verbs in a fixed order, so collision
// suffixes are deterministic.
func SynthesizeTools(app App, doc *openapi3.T) []ToolDefinition {
	paths, items := sortedPaths(doc)
	appComponent := SanitizeComponent(app.Name, "app")
	taken := make(map[string]bool)
	var defs []ToolDefinition

	for _, rawPath := range paths {
		item := items[rawPath]
		if item == nil {
			continue
		}
		for _, entry := range operationsOf(item) {
			verb, op := entry.verb, entry.op

			var opComponent string
			if id := strings.TrimSpace(op.OperationID); id != "" {
				opComponent = SanitizeComponent(id, verb)
			} else {
				bare := strings.NewReplacer("{", "", "}", "").Replace(rawPath)
				opComponent = verb + "_" + SanitizeComponent(bare, "tool")
			}
			name := UniqueName(appComponent+"__"+opComponent, taken)
			taken[name] = true

			params := mergeParameters(item.Parameters, op.Parameters)
			schema, contentType := buildInputSchema(params, op.RequestBody)

			method := strings.ToUpper(verb)
			defs = append(defs, ToolDefinition{
				Name:            name,
				Title:           fmt.Sprintf("%s: %s %s", app.Name, method, rawPath),
				Description:     operationText(op, method, rawPath),
				App:             app.Name,
				BaseURL:         app.BaseURL,
				Domain:          app.Domain,
				Method:          method,
				Path:            rawPath,
				InputSchema:     schema,
				BodyContentType: contentType,
			})
		}
	}
	return defs
}

func operationText(op *openapi3.Operation, method, path string) string {
	if s := strings.TrimSpace(op.Summary); s != "" {
		return s
	}
	if d := strings.TrimSpace(op.Description); d != "" {
		return d
	}
	return fmt.Sprintf("Call %s %s", method, path)
}

// mergeParameters lets operation parameters override path-item parameters
// with the same (name, in), keeping first-seen order.
func mergeParameters(pathLevel, opLevel openapi3.Parameters) []*openapi3.Parameter {
	type key struct{ name, in string }
	index := make(map[key]int)
	var merged []*openapi3.Parameter
	for _, list := range []openapi3.Parameters{pathLevel, opLevel} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil || ref.Value.Name == "" || ref.Value.In == "" {
				continue
			}
			k := key{ref.Value.Name, ref.Value.In}
			if i, ok := index[k]; ok {
				merged[i] = ref.Value
				continue
			}
			index[k] = len(merged)
			merged = append(merged, ref.Value)
		}
	}
	return merged
}

func buildInputSchema(params []*openapi3.Parameter, body *openapi3.RequestBodyRef) (*Schema, string) {
	groups := make(map[string]*Schema, len(parameterGroups))
	for _, g := range parameterGroups {
		s := ObjectSchema()
		s.Closed = true
		groups[g.in] = s
	}

	for _, p := range params {
		group, ok := groups[strings.ToLower(p.In)]
		if !ok {
			continue
		}
		var prop *Schema
		if p.Schema != nil && p.Schema.Value != nil {
			prop = schemaFromRef(p.Schema)
		} else {
			prop = TypedSchema("string")
		}
		if d := strings.TrimSpace(p.Description); d != "" {
			prop.Description = d
		}
		group.SetProperty(p.Name, prop)
		if p.Required {
			group.Require(p.Name)
		}
	}

	top := ObjectSchema()
	top.Closed = true
	var required []string
	for _, g := range parameterGroups {
		group := groups[g.in]
		if !group.HasProperties() {
			continue
		}
		top.SetProperty(g.key, group)
		if len(group.Required) > 0 {
			required = append(required, g.key)
		}
	}

	var contentType string
	if body != nil && body.Value != nil {
		bodySchema := ObjectSchema()
		bodySchema, contentType = pickBodySchema(body.Value.Content, bodySchema)
		top.SetProperty("body", bodySchema)
		if body.Value.Required {
			required = append(required, "body")
		}
	}

	timeout := TypedSchema("number")
	timeout.Minimum = floatPtr(minTimeoutSec)
	timeout.Maximum = floatPtr(maxTimeoutSec)
	timeout.Default = defaultTimeoutSec
	timeout.Description = "Optional request timeout (seconds)"
	top.SetProperty("timeout_sec", timeout)

	if len(required) > 0 {
		slices.Sort(required)
		top.Required = slices.Compact(required)
	}
	return top, contentType
}

// pickBodySchema returns the schema of the first media type, in preference
// order, that declares one.
func pickBodySchema(content openapi3.Content, fallback *Schema) (*Schema, string) {
	if len(content) == 0 {
		return fallback, ""
	}
	order := append(slices.Clone(preferredMediaTypes), sortedKeys(content)...)
	for _, mt := range order {
		media, ok := content[mt]
		if !ok || media == nil || media.Schema == nil || media.Schema.Value == nil {
			continue
		}
		return schemaFromRef(media.Schema), mt
	}
	return fallback, ""
}
