// Package mcp exposes the document store as Model Context Protocol tools over
// a line-delimited stdio transport or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// ToolError is a tool failure reported in-band as an isError result, so the
// calling model can read it and correct its next call.
type ToolError struct {
	// Code is the DocError code, empty for errors from outside the domain.
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Message
}

// MapError converts an operation error into what the MCP layer returns.
// JSON-RPC errors pass through unchanged and surface as protocol errors;
// everything else becomes a *ToolError.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var wire *jsonrpc.Error
	if errors.As(err, &wire) {
		return wire
	}

	if de, ok := docerrors.As(err); ok {
		return &ToolError{Code: de.Code, Message: docerrors.FormatForUser(de)}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &ToolError{Message: "Request was canceled."}
	default:
		return &ToolError{Message: fmt.Sprintf("Internal error: %v", err)}
	}
}

// NewMethodNotFoundError creates a -32601 error for an unknown tool.
func NewMethodNotFoundError(name string) *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    jsonrpc.CodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found. Available tools: %s.", name, toolNames()),
	}
}

// NewNotInitializedError creates the -32600 error sent for requests that
// arrive before the initialize handshake completes.
func NewNotInitializedError() *jsonrpc.Error {
	return &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "server not initialized"}
}

// errorCode returns a short code for logging.
func errorCode(err error) string {
	var wire *jsonrpc.Error
	if errors.As(err, &wire) {
		return fmt.Sprint(wire.Code)
	}
	var te *ToolError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code
	}
	return docerrors.GetCode(err)
}
