package openapi

// ToolDefinition is one callable HTTP operation exposed as a tool.
type ToolDefinition struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	App         string  `json:"app"`
	BaseURL     string  `json:"base_url"`
	Domain      string  `json:"domain"`
	Method      string  `json:"method"`
	Path        string  `json:"path"`
	InputSchema *Schema `json:"input_schema"`

	// BodyContentType is the media type the request body schema came from.
	BodyContentType string `json:"body_content_type,omitempty"`

	IsPlaceholder     bool   `json:"is_placeholder,omitempty"`
	PlaceholderReason string `json:"placeholder_reason,omitempty"`
}

// OperationKey returns "METHOD path", the form used by operation selection.
func (t *ToolDefinition) OperationKey() string {
	return t.Method + " " + t.Path
}

// App identifies the application a document belongs to.
type App struct {
	Name    string
	BaseURL string
	Domain  string
}
