package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gridctl/toolgate/pkg/credentials"
	"github.com/gridctl/toolgate/pkg/logging"
)

var tracer = otel.Tracer("github.com/gridctl/toolgate/pkg/openapi")

// maxResponseBodySize caps upstream response bodies (10MB).
const maxResponseBodySize = 10 * 1024 * 1024

var pathTokenPattern = regexp.MustCompile(`\{([^}]+)\}`)

// InvokeResult is the structured outcome of a tool invocation. Upstream
// and transport failures are reported here with OK false.
type InvokeResult struct {
	App         string `json:"app"`
	Tool        string `json:"tool"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	StatusCode  *int   `json:"status_code"`
	OK          bool   `json:"ok"`
	ContentType string `json:"content_type"`
	Body        any    `json:"body"`
	Error       string `json:"error,omitempty"`
}

// Invoker executes ToolDefinitions as HTTP requests.
type Invoker struct {
	client *http.Client
	tokens credentials.TokenSource
	logger *slog.Logger
}

// NewInvoker creates an invoker. Per-call timeouts come from the
// "timeout_sec" argument, so client should not carry its own timeout.
func NewInvoker(client *http.Client, tokens credentials.TokenSource) *Invoker {
	if client == nil {
		client = &http.Client{}
	}
	if tokens == nil {
		tokens = credentials.None
	}
	return &Invoker{client: client, tokens: tokens, logger: logging.NewDiscardLogger()}
}

// SetLogger sets the logger for request tracing.
func (inv *Invoker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		inv.logger = logger
	}
}

// callArgs is the validated argument envelope.
type callArgs struct {
	path    map[string]any
	query   map[string]any
	headers map[string]any
	cookies map[string]any
	body    any
	hasBody bool
	timeout time.Duration
}

func parseArgs(args map[string]any) (*callArgs, error) {
	out := &callArgs{timeout: defaultTimeoutSec * time.Second}
	groups := []struct {
		key string
		dst *map[string]any
	}{
		{"path", &out.path},
		{"query", &out.query},
		{"headers", &out.headers},
		{"cookies", &out.cookies},
	}
	for _, g := range groups {
		raw, ok := args[g.key]
		if !ok || raw == nil {
			continue
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: `%s` must be an object", ErrInvalidArguments, g.key)
		}
		*g.dst = m
	}

	if raw, ok := args["timeout_sec"]; ok && raw != nil {
		secs, err := toSeconds(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("%w: `timeout_sec` must be a positive number", ErrInvalidArguments)
		}
		out.timeout = time.Duration(secs * float64(time.Second))
	}

	out.body, out.hasBody = args["body"]
	if out.body == nil {
		out.hasBody = false
	}
	return out, nil
}

func toSeconds(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// RenderPath substitutes {tokens} in template with fully escaped values.
func RenderPath(template string, values map[string]any) (string, error) {
	var missing string
	rendered := pathTokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		v, ok := values[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return token
		}
		return escapeSegment(stringify(v))
	})
	if missing != "" {
		return "", fmt.Errorf("%w '%s'", ErrMissingParameter, missing)
	}
	return rendered, nil
}

// escapeSegment escapes everything outside the unreserved set, "/" included.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// CombineBaseAndPath appends path to the base URL's path, dropping any
// query or fragment on the base.
func CombineBaseAndPath(baseURL, path string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return parsed.Scheme + "://" + parsed.Host + strings.TrimRight(parsed.EscapedPath(), "/") + path, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Invoke executes tool with args. Argument errors are returned as typed
// errors; everything after the request is built is reported in the result.
func (inv *Invoker) Invoke(ctx context.Context, tool *ToolDefinition, args map[string]any) (*InvokeResult, error) {
	if tool.IsPlaceholder {
		return placeholderResult(tool), nil
	}

	parsed, err := parseArgs(args)
	if err != nil {
		return nil, err
	}
	rendered, err := RenderPath(tool.Path, parsed.path)
	if err != nil {
		return nil, err
	}
	target, err := CombineBaseAndPath(tool.BaseURL, rendered)
	if err != nil {
		return nil, err
	}
	if len(parsed.query) > 0 {
		q := url.Values{}
		for _, k := range sortedKeys(parsed.query) {
			switch v := parsed.query[k].(type) {
			case []any:
				for _, item := range v {
					q.Add(k, stringify(item))
				}
			default:
				q.Add(k, stringify(v))
			}
		}
		target += "?" + q.Encode()
	}

	var body io.Reader
	jsonBody := false
	if parsed.hasBody {
		switch b := parsed.body.(type) {
		case map[string]any, []any:
			data, err := json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("%w: body: %v", ErrInvalidArguments, err)
			}
			body = bytes.NewReader(data)
			jsonBody = true
		default:
			body = strings.NewReader(stringify(b))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, parsed.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "openapi.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("toolgate.app", tool.App),
		attribute.String("toolgate.tool", tool.Name),
		attribute.String("http.request.method", tool.Method),
	)

	req, err := http.NewRequestWithContext(ctx, tool.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	for k, v := range parsed.headers {
		req.Header.Set(k, stringify(v))
	}
	for k, v := range parsed.cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: stringify(v)})
	}
	if parsed.hasBody {
		callerSet := req.Header.Get("Content-Type") != ""
		if jsonBody && !callerSet {
			req.Header.Set("Content-Type", "application/json")
		}
		if tool.BodyContentType != "" && !callerSet {
			req.Header.Set("Content-Type", tool.BodyContentType)
		}
	}
	token, err := inv.tokens.Token(ctx, tool.Domain)
	if err != nil {
		inv.logger.Warn("token unavailable for invocation", "domain", tool.Domain, "error", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	result := &InvokeResult{
		App:    tool.App,
		Tool:   tool.Name,
		Method: tool.Method,
		URL:    target,
	}

	inv.logger.Debug("invoking upstream", "tool", tool.Name, "method", tool.Method, "url", target,
		"headers", logging.RedactHeaders(req.Header))

	resp, err := inv.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		result.Error = fmt.Errorf("%w: %v", ErrTransport, err).Error()
		return result, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		result.Error = fmt.Errorf("%w: reading response: %v", ErrTransport, err).Error()
		return result, nil
	}

	status := resp.StatusCode
	result.StatusCode = &status
	result.OK = status >= 200 && status < 300
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	result.URL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")
	result.Body = decodeBody(result.ContentType, data)
	return result, nil
}

func decodeBody(contentType string, data []byte) any {
	if strings.Contains(strings.ToLower(contentType), "application/json") {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}

func placeholderResult(tool *ToolDefinition) *InvokeResult {
	reason := tool.PlaceholderReason
	errText := reason
	if errText == "" {
		errText = placeholderFallback
	}
	return &InvokeResult{
		App:         tool.App,
		Tool:        tool.Name,
		Method:      placeholderMethod,
		URL:         tool.BaseURL,
		OK:          false,
		ContentType: "application/json",
		Error:       errText,
		Body: map[string]any{
			"message":    placeholderMessage,
			"reason":     reason,
			"suggestion": placeholderSuggestion,
		},
	}
}
