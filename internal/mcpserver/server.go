// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Voxnote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/voxnote/internal/genai"
	"github.com/starford/voxnote/internal/identity"
	"github.com/starford/voxnote/internal/models"
	"github.com/starford/voxnote/internal/notesession"
	"github.com/starford/voxnote/internal/speech"
	"github.com/starford/voxnote/internal/workspace"
)

const languagesURI = "voxnote://languages"

// Server wraps the MCP server with Voxnote tools. All tools act as one
// fixed owner.
type Server struct {
	mcp        *server.MCPServer
	registry   *workspace.Registry
	id         identity.Identity
	translator notesession.Translator
	titler     speech.Titler
}

// New creates a new MCP server with all Voxnote tools registered.
// translator and titler may be nil; their tools then report generation as
// unavailable.
func New(registry *workspace.Registry, id identity.Identity, translator notesession.Translator, titler speech.Titler) *Server {
	s := &Server{registry: registry, id: id, translator: translator, titler: titler}

	s.mcp = server.NewMCPServer(
		"Voxnote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes newest first. With a query, only notes whose title or content contain it (case-insensitive)."),
		mcp.WithString("query", mcp.Description("Optional search text")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Title and content may be empty."),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Change the title and/or content of a note. Omitted fields are left as they are."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New content")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("toggle_bookmark",
		mcp.WithDescription("Flip the bookmark flag of a note and return the stored value."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.toggleBookmark)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note permanently. Requires confirm=true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("translate_note",
		mcp.WithDescription("Translate the content of a note. See "+languagesURI+" for supported languages."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("language", mcp.Description("Target language, defaults to "+string(genai.DefaultLanguage))),
	), s.translateNote)

	s.mcp.AddTool(mcp.NewTool("generate_title",
		mcp.WithDescription("Suggest a short title (at most six words) for a piece of text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to title")),
	), s.generateTitle)

	s.mcp.AddResource(
		mcp.NewResource(languagesURI, "Translation Languages",
			mcp.WithResourceDescription("Languages accepted by translate_note, default first."),
			mcp.WithMIMEType("application/json"),
		),
		s.readLanguagesResource,
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

// workspace opens the owner's workspace and reloads its notes, so lookups
// by id see the stored state rather than the last search result.
func (s *Server) workspace(ctx context.Context) (*workspace.Workspace, error) {
	ws, err := s.registry.Get(ctx, s.id)
	if err != nil {
		return nil, err
	}
	if _, err := ws.Store.Load(ctx, s.id.OwnerID); err != nil {
		return nil, err
	}
	return ws, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.registry.Get(ctx, s.id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		_, err = ws.Store.Load(ctx, s.id.OwnerID)
	} else {
		_, err = ws.Store.Search(ctx, s.id.OwnerID, query)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ws.Store.Notes()), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, ok := ws.Store.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := ws.Store.Create(ctx, s.id.OwnerID, req.GetString("title", ""), req.GetString("content", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var fields models.Fields
	args := req.GetArguments()
	if v, ok := args["title"].(string); ok {
		fields.Title = models.String(v)
	}
	if v, ok := args["content"].(string); ok {
		fields.Content = models.String(v)
	}
	if fields.Empty() {
		return mcp.NewToolResultError("nothing to update: pass title and/or content"), nil
	}

	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := ws.Store.Update(ctx, id, fields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

func (s *Server) toggleBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := ws.Controller.ToggleBookmark(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := "removed from bookmarks"
	if n.IsBookmarked {
		state = "bookmarked"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", state, id)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !req.GetBool("confirm", false) {
		return mcp.NewToolResultError("delete not confirmed: call again with confirm=true"), nil
	}
	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := ws.Controller.RequestDelete(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := ws.Controller.ConfirmDelete(ctx); err != nil {
		ws.Controller.CancelDelete()
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) translateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lang := genai.DefaultLanguage
	if raw := req.GetString("language", ""); raw != "" {
		if lang, err = genai.ParseLanguage(raw); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if s.translator == nil {
		return mcp.NewToolResultError("translation unavailable: no generation backend configured"), nil
	}

	ws, err := s.workspace(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, ok := ws.Store.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, err := s.translator.Translate(ctx, n.Content, lang)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) generateTitle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.titler == nil {
		return mcp.NewToolResultError("title generation unavailable: no generation backend configured"), nil
	}
	title, err := s.titler.Title(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(title), nil
}

func (s *Server) readLanguagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(genai.Languages())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      languagesURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
