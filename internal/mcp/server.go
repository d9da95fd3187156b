// Package mcp exposes read-only document tools to MCP clients over streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"docfabric/internal/service"
)

const serverName = "docfabric"

// Options configures NewServer.
type Options struct {
	Version string
	// MaxListLimit caps list_documents' limit. Defaults to 100.
	MaxListLimit int
}

type tools struct {
	svc     service.DocumentService
	maxList int
}

// NewServer builds an MCP server with list_documents, get_document and
// read_document_content backed by svc.
func NewServer(svc service.DocumentService, opts Options) *mcpserver.MCPServer {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.MaxListLimit <= 0 {
		opts.MaxListLimit = 100
	}
	t := &tools{svc: svc, maxList: opts.MaxListLimit}

	s := mcpserver.NewMCPServer(serverName, opts.Version, mcpserver.WithToolCapabilities(false))

	s.AddTool(mcpgo.NewTool("list_documents",
		mcpgo.WithDescription("List documents, newest first, with pagination."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of documents to return."), mcpgo.DefaultNumber(service.DefaultListLimit)),
		mcpgo.WithNumber("offset", mcpgo.Description("Number of documents to skip."), mcpgo.DefaultNumber(0)),
	), t.listDocuments)

	s.AddTool(mcpgo.NewTool("get_document",
		mcpgo.WithDescription("Get document metadata by ID."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("document_id", mcpgo.Required(), mcpgo.Description("UUID of the document.")),
	), t.getDocument)

	s.AddTool(mcpgo.NewTool("read_document_content",
		mcpgo.WithDescription("Read the text content of a document, optionally a window of it."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("document_id", mcpgo.Required(), mcpgo.Description("UUID of the document.")),
		mcpgo.WithNumber("offset", mcpgo.Description("Character offset to start reading from.")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of characters to return.")),
	), t.readContent)

	return s
}

// Handler serves s statelessly; every POST carries a complete JSON-RPC exchange.
func Handler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(true))
}

func (t *tools) listDocuments(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	limit := req.GetInt("limit", service.DefaultListLimit)
	if limit < 1 || limit > t.maxList {
		return mcpgo.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", t.maxList)), nil
	}
	offset := req.GetInt("offset", 0)
	if offset < 0 {
		return mcpgo.NewToolResultError("offset must be >= 0"), nil
	}

	list, err := t.svc.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return jsonResult(list)
}

func (t *tools) getDocument(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, res := documentID(req)
	if res != nil {
		return res, nil
	}
	doc, err := t.svc.Get(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(doc)
}

// readContent returns the window as plain text. A window shorter than the document gets
// a footer with its position so the caller can page on.
func (t *tools) readContent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, res := documentID(req)
	if res != nil {
		return res, nil
	}
	w := service.Window{
		Offset: req.GetInt("offset", 0),
		Limit:  req.GetInt("limit", service.NoLimit),
	}
	if w.Limit < 0 {
		w.Limit = service.NoLimit
	}

	c, err := t.svc.Content(ctx, id, w)
	if err != nil {
		return toolError(err)
	}
	text := c.Content
	if c.Length < c.TotalLength {
		text += fmt.Sprintf("\n\n---\n[offset=%d length=%d total=%d]", c.Offset, c.Length, c.TotalLength)
	}
	return mcpgo.NewToolResultText(text), nil
}

func documentID(req mcpgo.CallToolRequest) (string, *mcpgo.CallToolResult) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return "", mcpgo.NewToolResultError(err.Error())
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", mcpgo.NewToolResultError("document_id must be a UUID")
	}
	return id, nil
}

// toolError reports caller mistakes as tool results and anything else as a protocol error.
func toolError(err error) (*mcpgo.CallToolResult, error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return mcpgo.NewToolResultError("document not found"), nil
	case errors.Is(err, service.ErrInvalidRange), errors.Is(err, service.ErrContentUnavailable):
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}
