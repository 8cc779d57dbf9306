package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/taboard/internal/boardservice"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
	"github.com/starford/taboard/internal/syncer"
)

type fakeSyncer struct {
	calls   int
	outcome syncer.Outcome
}

func (f *fakeSyncer) SyncNow(_ context.Context, req syncer.Request) (syncer.Outcome, error) {
	f.calls++
	if req.Reason != syncer.ReasonManual {
		return syncer.OutcomeFailed, nil
	}
	return f.outcome, nil
}

func testServer(t *testing.T) (*Server, *state.Store, *fakeSyncer) {
	t.Helper()

	store := state.New()
	store.InitState(&models.AppState{
		Spaces: []*models.Space{{ID: "space-1", Name: "Work", Boards: []*models.Board{
			{ID: "board-1", Name: "Inbox", Cards: []*models.Card{
				{ID: "card-1", Type: models.CardTypeLink, Title: "Go reference", URL: "https://go.dev/ref/mod", Tags: []string{"golang"}},
				{ID: "card-2", Type: models.CardTypeNote, Title: "Standup", Note: "ask about release"},
			}},
		}}},
	})
	fs := &fakeSyncer{outcome: syncer.OutcomeUploaded}
	return New(boardservice.NewService(store), fs), store, fs
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_state":
		result, err = srv.getState(ctx, req)
	case "search_cards":
		result, err = srv.searchCards(ctx, req)
	case "add_card":
		result, err = srv.addCard(ctx, req)
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetState(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "get_state", map[string]any{})
	var doc models.AppState
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Spaces) != 1 || len(doc.Spaces[0].Boards[0].Cards) != 2 {
		t.Errorf("state = %+v", doc.Spaces)
	}
}

func TestSearchCards(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "search_cards", map[string]any{"query": "RELEASE"})
	var hits []boardservice.CardHit
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(hits) != 1 || hits[0].Card.ID != "card-2" {
		t.Errorf("hits = %+v", hits)
	}

	r = callTool(t, srv, "search_cards", map[string]any{"query": "nothing-matches"})
	if resultText(r) != "no cards found" {
		t.Errorf("empty search = %q", resultText(r))
	}

	r = callTool(t, srv, "search_cards", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing query")
	}
}

func TestAddCard(t *testing.T) {
	srv, store, _ := testServer(t)

	r := callTool(t, srv, "add_card", map[string]any{
		"board_id": "board-1",
		"url":      "https://pkg.go.dev",
		"tags":     "golang, docs,",
	})
	if r.IsError {
		t.Fatalf("add_card failed: %s", resultText(r))
	}
	cards := store.GetState().Spaces[0].Boards[0].Cards
	if len(cards) != 3 {
		t.Fatalf("cards = %d, want 3", len(cards))
	}
	first := cards[0]
	if first.URL != "https://pkg.go.dev" || first.Title != "https://pkg.go.dev" {
		t.Errorf("first card = %+v", first)
	}
	if strings.Join(first.Tags, ",") != "golang,docs" {
		t.Errorf("tags = %v", first.Tags)
	}
}

func TestAddCard_Errors(t *testing.T) {
	srv, store, _ := testServer(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"link without url", map[string]any{"title": "x"}},
		{"unknown type", map[string]any{"type": "image", "url": "https://x.test"}},
		{"unknown board", map[string]any{"board_id": "nope", "type": "note", "title": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := callTool(t, srv, "add_card", tt.args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
	if n := len(store.GetState().Spaces[0].Boards[0].Cards); n != 2 {
		t.Errorf("cards = %d after failed adds, want 2", n)
	}
}

func TestSyncNow(t *testing.T) {
	srv, _, fs := testServer(t)

	r := callTool(t, srv, "sync_now", map[string]any{})
	if resultText(r) != string(syncer.OutcomeUploaded) || fs.calls != 1 {
		t.Errorf("sync_now = %q, calls = %d", resultText(r), fs.calls)
	}

	noSync := New(srv.svc, nil)
	if r := callTool(t, noSync, "sync_now", map[string]any{}); !r.IsError {
		t.Error("expected error without a syncer")
	}
}

func TestStateResource(t *testing.T) {
	srv, _, _ := testServer(t)

	contents, err := srv.readStateResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != stateURI || !strings.Contains(tc.Text, "card-1") {
		t.Errorf("resource = %+v", contents)
	}
}
