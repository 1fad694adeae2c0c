package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedToolName is returned for a native name that is not
	// "mcp__{server}__{tool}".
	ErrMalformedToolName = errors.New("malformed MCP tool name")
	// ErrUnknownTool is returned when a name matches no tool or server.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrAccessDenied is returned when the resolved mode is deny.
	ErrAccessDenied = errors.New("access denied")
	// ErrApprovalRequired is returned when the resolved mode is approval and
	// no approver granted the call.
	ErrApprovalRequired = errors.New("approval required")
)

type unknownToolError struct{ name string }

func (e *unknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool '%s'. Refresh your MCP tool list and try again.", e.name)
}

func (e *unknownToolError) Unwrap() error { return ErrUnknownTool }
