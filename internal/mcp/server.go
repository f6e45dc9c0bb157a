// Package mcp implements a Model Context Protocol server for AegisMask.
// It lets AI assistants redact text and inspect keyword lists over the
// stdio transport.
package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mackeh/aegismask/internal/audit"
	"github.com/mackeh/aegismask/internal/moderation"
	"github.com/mackeh/aegismask/internal/wordlist"
)

const defaultAuditLimit = 20

// Server exposes moderation as MCP tools.
type Server struct {
	svc       *moderation.Service
	auditPath string
	strict    bool
	mcp       *server.MCPServer
}

// Options configures the MCP server.
type Options struct {
	Version   string
	AuditPath string // empty disables the audit tools
	// StrictKeywords rejects non-string keywords instead of dropping them.
	StrictKeywords bool
}

// NewServer creates an MCP server with AegisMask tools.
func NewServer(svc *moderation.Service, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		svc:       svc,
		auditPath: opts.AuditPath,
		strict:    opts.StrictKeywords,
		mcp: server.NewMCPServer("aegismask", opts.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("aegismask_redact",
		mcp.WithDescription("Mask dictionary keywords in text and return the redacted text, the matched spans and the policy decision"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to redact")),
		mcp.WithString("list", mcp.Description("Keyword list name; the default list is used when omitted")),
		mcp.WithArray("keywords", mcp.Description("Ad-hoc keywords; overrides list"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("ignore_whitespace", mcp.Description("Skip ASCII whitespace inside keywords and matched text")),
		mcp.WithBoolean("case_insensitive", mcp.Description("Fold ASCII letters")),
	), s.redact)

	s.mcp.AddTool(mcp.NewTool("aegismask_lists",
		mcp.WithDescription("List the loaded keyword lists with their sizes and fingerprints"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.lists)

	if s.auditPath != "" {
		s.mcp.AddTool(mcp.NewTool("aegismask_audit_query",
			mcp.WithDescription("Return the most recent audit log entries"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return"), mcp.DefaultNumber(defaultAuditLimit)),
			mcp.WithReadOnlyHintAnnotation(true),
		), s.auditQuery)
		s.mcp.AddTool(mcp.NewTool("aegismask_verify_logs",
			mcp.WithDescription("Verify the integrity of the audit log hash chain"),
			mcp.WithReadOnlyHintAnnotation(true),
		), s.verifyLogs)
	}
	return s
}

// Run serves MCP over the given streams until ctx is cancelled or in
// reaches EOF.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) redact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()

	mreq := moderation.Request{
		Text:  text,
		List:  req.GetString("list", ""),
		Actor: "mcp",
	}
	if raw, ok := args["keywords"].([]any); ok {
		l, err := wordlist.FromValues(raw, s.strict)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid keywords", err), nil
		}
		mreq.Keywords = l.Keywords
	}
	if _, ok := args["ignore_whitespace"]; ok {
		v := req.GetBool("ignore_whitespace", false)
		mreq.IgnoreWhitespace = &v
	}
	if _, ok := args["case_insensitive"]; ok {
		v := req.GetBool("case_insensitive", false)
		mreq.CaseInsensitive = &v
	}

	v, err := s.svc.Moderate(ctx, mreq)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("redaction failed", err), nil
	}
	return jsonResult(v)
}

func (s *Server) lists(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lists := s.svc.Lists()
	return jsonResult(map[string]any{"lists": lists, "count": len(lists)})
}

func (s *Server) auditQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultAuditLimit)
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	entries, err := audit.ReadAll(s.auditPath)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("read audit log", err), nil
	}
	total := len(entries)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return jsonResult(map[string]any{"entries": entries, "total": total})
}

func (s *Server) verifyLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := audit.Verify(s.auditPath)
	if err != nil {
		return jsonResult(map[string]any{"valid": false, "entries": n, "error": err.Error()})
	}
	return jsonResult(map[string]any{"valid": true, "entries": n})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(text)), nil
}
