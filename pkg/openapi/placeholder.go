package openapi

// Placeholder strings returned to clients.
const (
	placeholderDescription = "Placeholder tool because API could not be discovered at sync time"
	placeholderMessage     = "This is a placeholder tool. Upstream API spec is unreachable or has zero endpoints."
	placeholderSuggestion  = "Check app health diagnostics and OpenAPI path configuration."
	placeholderFallback    = "Endpoint unavailable"
	placeholderMethod      = "PLACEHOLDER"
)

// PlaceholderTool builds the stand-in tool for an application whose API
// could not be discovered.
func PlaceholderTool(app App, reason string) ToolDefinition {
	component := SanitizeComponent(app.Name, "app")

	schema := ObjectSchema()
	schema.Closed = true
	msg := TypedSchema("string")
	msg.Description = "Optional client note. This placeholder always returns diagnostics."
	schema.SetProperty("message", msg)

	return ToolDefinition{
		Name:              component + "__endpoint_unavailable",
		Title:             app.Name + ": Endpoint Unavailable",
		Description:       placeholderDescription,
		App:               app.Name,
		BaseURL:           app.BaseURL,
		Domain:            app.Domain,
		Method:            "GET",
		Path:              "/__placeholder__",
		InputSchema:       schema,
		IsPlaceholder:     true,
		PlaceholderReason: reason,
	}
}
