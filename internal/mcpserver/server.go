// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/boardservice"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/syncer"
)

const (
	stateURI      = "taboard://state"
	defaultLimit  = 20
	serverName    = "Taboard"
	serverVersion = "1.0.0"
)

// Syncer runs a sync on demand.
type Syncer interface {
	SyncNow(ctx context.Context, req syncer.Request) (syncer.Outcome, error)
}

// Server wraps the MCP server with board tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *boardservice.Service
	sync Syncer
}

// New creates a new MCP server with all board tools registered. sync may be
// nil, in which case sync_now reports that sync is unavailable.
func New(svc *boardservice.Service, sync Syncer) *Server {
	s := &Server{svc: svc, sync: sync}

	s.mcp = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Return the whole board document: spaces, boards, cards and preferences."),
	), s.getState)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Case-insensitive search over card titles, notes, URLs and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("add_card",
		mcp.WithDescription("Add a card to the top of a board. Link cards need a URL. "+
			"Without board_id the card goes to the capture board of the active space."),
		mcp.WithString("board_id", mcp.Description("Target board id (optional)")),
		mcp.WithString("type", mcp.Description("Card type: link, note or todo (default link)")),
		mcp.WithString("title", mcp.Description("Card title; defaults to the URL")),
		mcp.WithString("url", mcp.Description("Bookmark URL, required for link cards")),
		mcp.WithString("note", mcp.Description("Free-form note")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	), s.addCard)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Reconcile the local board with remote storage and report the outcome."),
	), s.syncNow)

	s.mcp.AddResource(
		mcp.NewResource(stateURI, "Board document",
			mcp.WithResourceDescription("The current board document as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStateResource,
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

func (s *Server) getState(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.State(ctx))
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := s.svc.Search(ctx, query, req.GetInt("limit", defaultLimit))
	if len(hits) == 0 {
		return mcp.NewToolResultText("no cards found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) addCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := boardservice.CardInput{
		Type:  req.GetString("type", models.CardTypeLink),
		Title: req.GetString("title", ""),
		URL:   strings.TrimSpace(req.GetString("url", "")),
		Note:  req.GetString("note", ""),
		Tags:  splitTags(req.GetString("tags", "")),
	}
	switch in.Type {
	case models.CardTypeLink:
		if in.URL == "" {
			return mcp.NewToolResultError("url is required for link cards"), nil
		}
	case models.CardTypeNote, models.CardTypeTodo:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown card type: %s", in.Type)), nil
	}

	hit, err := s.svc.AddCard(ctx, req.GetString("board_id", ""), in)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("board not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hit)
}

func (s *Server) syncNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.sync == nil {
		return mcp.NewToolResultError("sync is not configured"), nil
	}
	outcome, err := s.sync.SyncNow(ctx, syncer.Request{Reason: syncer.ReasonManual})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(outcome)), nil
}

func (s *Server) readStateResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.svc.State(ctx))
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal state: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      stateURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
