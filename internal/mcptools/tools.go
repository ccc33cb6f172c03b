// Package mcptools exposes the case repository to MCP clients over stdio.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/casebook"
	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const maxListLimit = 200

// Tools implements the MCP tool handlers.
type Tools struct {
	svc *casebook.Service
	log *zap.Logger
}

// New returns handlers over svc.
func New(svc *casebook.Service, log *zap.Logger) *Tools {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tools{svc: svc, log: log}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(svc *casebook.Service, version string, log *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer("casebook", version, server.WithToolCapabilities(false))
	New(svc, log).Register(s)
	return s
}

// Serve runs an MCP server on stdin and stdout until the client disconnects.
func Serve(svc *casebook.Service, version string, log *zap.Logger) error {
	return server.ServeStdio(NewServer(svc, version, log))
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_cases",
		mcp.WithDescription("List recorded clinical cases, newest first."),
		mcp.WithNumber("skip", mcp.Description("Number of cases to skip")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of cases to return (default 20)")),
	), t.ListCases)

	s.AddTool(mcp.NewTool("get_case",
		mcp.WithDescription("Get one case with its transcription, analysis, tags and notes."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Case ID")),
	), t.GetCase)

	s.AddTool(mcp.NewTool("search_cases",
		mcp.WithDescription("Search cases by text, specialty, tags and favorite status."),
		mcp.WithString("query", mcp.Description("Case-insensitive text matched against transcription, summary and specialty")),
		mcp.WithString("specialty", mcp.Description("Exact specialty to filter by")),
		mcp.WithArray("tags", mcp.Description("Match cases carrying any of these tags"), mcp.WithStringItems()),
		mcp.WithBoolean("favorites_only", mcp.Description("Only return favorite cases")),
	), t.SearchCases)

	s.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag in use with the number of cases carrying it."),
	), t.ListTags)

	s.AddTool(mcp.NewTool("suggest_tags",
		mcp.WithDescription("Suggest existing tags containing a fragment."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Tag fragment")),
		mcp.WithArray("exclude", mcp.Description("Tags to leave out"), mcp.WithStringItems()),
	), t.SuggestTags)

	s.AddTool(mcp.NewTool("analytics_summary",
		mcp.WithDescription("Case totals, specialty distribution, recent activity and monthly goal progress."),
	), t.AnalyticsSummary)
}

// ListCases handles list_cases.
func (t *Tools) ListCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	skip := req.GetInt("skip", 0)
	limit := req.GetInt("limit", 20)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	recs, err := t.svc.List(ctx, skip, limit)
	if err != nil {
		return t.failure("list cases", err)
	}
	return jsonResult(summarize(recs))
}

// GetCase handles get_case.
func (t *Tools) GetCase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := t.svc.Get(ctx, id)
	if err != nil {
		return t.failure("get case", err)
	}
	return jsonResult(rec)
}

// SearchCases handles search_cases.
func (t *Tools) SearchCases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := cases.Query{
		Text:          req.GetString("query", ""),
		Tags:          req.GetStringSlice("tags", nil),
		FavoritesOnly: req.GetBool("favorites_only", false),
	}
	if args := req.GetArguments(); args != nil {
		if _, ok := args["specialty"]; ok {
			q.Specialty = cases.StringPtr(req.GetString("specialty", ""))
		}
	}
	recs, err := t.svc.Search(ctx, q)
	if err != nil {
		return t.failure("search cases", err)
	}
	return jsonResult(summarize(recs))
}

// ListTags handles list_tags.
func (t *Tools) ListTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := t.svc.TagCounts(ctx)
	if err != nil {
		return t.failure("list tags", err)
	}
	return jsonResult(counts)
}

// SuggestTags handles suggest_tags.
func (t *Tools) SuggestTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	got, err := t.svc.SuggestTags(ctx, query, req.GetStringSlice("exclude", nil))
	if err != nil {
		return t.failure("suggest tags", err)
	}
	return jsonResult(got)
}

// AnalyticsSummary handles analytics_summary.
func (t *Tools) AnalyticsSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := t.svc.Analytics(ctx)
	if err != nil {
		return t.failure("analytics", err)
	}
	return jsonResult(struct {
		Summary      any     `json:"summary"`
		GoalProgress float64 `json:"goal_progress"`
	}{sum, sum.GoalProgress()})
}

// failure reports expected errors to the client as tool errors and
// anything else as a protocol error.
func (t *Tools) failure(op string, err error) (*mcp.CallToolResult, error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.log.Error("tool failed", zap.String("op", op), zap.Error(err))
	return nil, fmt.Errorf("%s: %w", op, err)
}

// caseSummary is the compact listing form of a case.
type caseSummary struct {
	ID         string   `json:"id"`
	CreatedAt  string   `json:"created_at"`
	Specialty  string   `json:"specialty,omitempty"`
	Complexity string   `json:"complexity,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags"`
	IsFavorite bool     `json:"is_favorite,omitempty"`
}

func summarize(recs []cases.Record) []caseSummary {
	out := make([]caseSummary, len(recs))
	for i, r := range recs {
		out[i] = caseSummary{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04"),
			Specialty:  r.Specialty,
			Complexity: r.Complexity,
			Summary:    r.Summary,
			Tags:       r.Tags,
			IsFavorite: r.IsFavorite,
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
