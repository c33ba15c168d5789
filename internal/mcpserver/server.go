// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes ECG report review tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/review"
)

const vocabularyURI = "ecglabel://vocabulary"

// Server wraps the MCP server with ecglabel tools.
type Server struct {
	mcp *server.MCPServer
	svc *review.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *review.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ecglabel",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the ECG report PDFs awaiting or carrying annotations, one key per line."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_annotation",
		mcp.WithDescription("Read the stored annotation record of a document as JSON."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document key, e.g. report_001.pdf")),
	), s.getAnnotation)

	s.mcp.AddTool(mcp.NewTool("save_annotation",
		mcp.WithDescription("Save the arrhythmia labels of a document, replacing any previous record. "+
			"At least one label or a note is required. Labels should come from the "+
			"ecglabel://vocabulary resource; anything else goes in custom_label."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document key, e.g. report_001.pdf")),
		mcp.WithArray("arrhythmias", mcp.Description("Vocabulary labels"), mcp.WithStringItems()),
		mcp.WithString("custom_label", mcp.Description("Optional free-text label")),
		mcp.WithString("notes", mcp.Description("Optional free-text notes")),
		mcp.WithString("annotated_by", mcp.Required(), mcp.Description("Name of the annotator")),
	), s.saveAnnotation)

	s.mcp.AddTool(mcp.NewTool("annotation_stats",
		mcp.WithDescription("Total annotated records, recently annotated keys and label counts."),
	), s.annotationStats)

	s.mcp.AddTool(mcp.NewTool("upload_document",
		mcp.WithDescription("Fetch an ECG report PDF from an http(s) URL or a base64 data URI and add it to the document store."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/pdf;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional document name (must end with .pdf)")),
	), s.uploadDocument)

	s.mcp.AddResource(
		mcp.NewResource(vocabularyURI, "Arrhythmia vocabulary",
			mcp.WithResourceDescription("Controlled arrhythmia labels in display order."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readVocabularyResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns err into a tool-level error message.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return mcp.NewToolResultError("storage unavailable, try again")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := s.svc.DocumentKeys(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(keys) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	return mcp.NewToolResultText(strings.Join(keys, "\n")), nil
}

func (s *Server) getAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.GetAnnotation(ctx, doc)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no annotation for %s", doc)), nil
		}
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) saveAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	by, err := req.RequireString("annotated_by")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sub := models.Submission{
		Arrhythmias: stringSlice(req, "arrhythmias"),
		CustomLabel: optionalString(req, "custom_label"),
		Notes:       optionalString(req, "notes"),
		AnnotatedBy: by,
	}
	key, _, err := s.svc.SaveAnnotation(ctx, doc, sub)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", key)), nil
}

func (s *Server) annotationStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.Stats(ctx, 5)
	if err != nil {
		return toolError(err), nil
	}
	counts, err := s.svc.LabelCounts(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"total":      stats.Total,
		"annotators": stats.Annotators,
		"recent":     stats.Recent,
		"labels":     counts,
	}), nil
}

func (s *Server) readVocabularyResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      vocabularyURI,
			MIMEType: "text/markdown",
			Text:     vocabularyText(),
		},
	}, nil
}

// vocabularyText renders the controlled labels as a Markdown list.
func vocabularyText() string {
	var b strings.Builder
	b.WriteString("# Arrhythmia vocabulary\n\n")
	for _, l := range models.Vocabulary {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\nLabels outside this list go in `custom_label`.\n")
	return b.String()
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func stringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
