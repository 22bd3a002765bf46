// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the notes store to LLM consumers via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/codex/internal/passage"
	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/searchidx"
	"github.com/starford/codex/internal/store"
)

// Server wraps the MCP server with notes store tools.
type Server struct {
	mcp    *server.MCPServer
	st     *store.Store
	reader *scripture.Reader
}

// New creates a new MCP server with all tools registered.
func New(st *store.Store, reader *scripture.Reader) *Server {
	s := &Server{st: st, reader: reader}

	s.mcp = server.NewMCPServer(
		"Codex",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content and page transcriptions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note with its pages, linked passages, and edit history."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Numeric note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_note_passages",
		mcp.WithDescription("List the scripture passages a note references, with citation labels. "+
			"Labels follow the codex://citation-format resource."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Numeric note id")),
	), s.listNotePassages)

	s.mcp.AddTool(mcp.NewTool("validate_passages",
		mcp.WithDescription("Check every stored passage against the scripture corpus and report "+
			"dangling or malformed references."),
	), s.validatePassages)

	s.mcp.AddTool(mcp.NewTool("get_citation_contract",
		mcp.WithDescription("Returns the canonical citation label format used for passage ranges."),
	), s.getCitationContract)

	// Resource: citation label contract.
	s.mcp.AddResource(
		mcp.NewResource("codex://citation-format", "Citation Format Contract",
			mcp.WithResourceDescription("Canonical citation label format for scripture passage ranges."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCitationResource,
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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := searchidx.Search(s.st.DB(), query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := s.noteIDArg(req)
	if errRes != nil {
		return errRes, nil
	}
	n, err := s.st.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: note %d", id)), nil
	}
	pages, err := s.st.NotePages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	editDates, err := s.st.EditDates(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"note":       n,
		"pages":      pages,
		"edit_dates": editDates,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotePassages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := s.noteIDArg(req)
	if errRes != nil {
		return errRes, nil
	}
	passages, relations, err := s.st.NotePassages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	type view struct {
		ID       int64   `json:"id"`
		Start    int64   `json:"start_verse_id"`
		End      int64   `json:"end_verse_id"`
		Citation *string `json:"citation"`
		Relation string  `json:"relation"`
	}
	views := make([]view, len(passages))
	for i, p := range passages {
		views[i] = view{
			ID: p.ID, Start: p.StartVerseID, End: p.EndVerseID,
			Citation: p.Citation, Relation: relations[i],
		}
	}
	out, _ := json.MarshalIndent(views, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) validatePassages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := passage.Validate(ctx, s.st, s.reader)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCitationContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CitationFormatContract), nil
}

func (s *Server) readCitationResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "codex://citation-format",
			MIMEType: "text/markdown",
			Text:     CitationFormatContract,
		},
	}, nil
}

func (s *Server) noteIDArg(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	raw, err := req.RequireString("note_id")
	if err != nil {
		return 0, mcp.NewToolResultError(err.Error())
	}
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil || id <= 0 {
		return 0, mcp.NewToolResultError(fmt.Sprintf("invalid note_id: %q", raw))
	}
	return id, nil
}
