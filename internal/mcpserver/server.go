// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes linkorder tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/seed"
)

// ActorID is recorded as the actor of changes made through MCP tools.
const ActorID = "mcp"

const contractURI = "linkorder://ordering-contract"

// Server wraps the MCP server with linkorder tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *linkservice.Service
	importer *seed.Importer
}

// New creates a new MCP server with all linkorder tools registered.
// importer may be nil, in which case import_seed is not offered.
func New(svc *linkservice.Service, importer *seed.Importer) *Server {
	s := &Server{svc: svc, importer: importer}

	s.mcp = server.NewMCPServer(
		"Linkorder",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_link",
		mcp.WithDescription("Create a link from a source entity to a target entity. "+
			"In an ordered group the link is inserted at index (0..N) or appended when index is omitted. "+
			"Returns the link and its group after the change."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source entity ID")),
		mcp.WithString("linkType", mcp.Required(), mcp.Description("Link type ID (e.g. has-song)")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target entity ID")),
		mcp.WithNumber("index", mcp.Description("Optional insert position for ordered groups")),
	), s.createLink)

	s.mcp.AddTool(mcp.NewTool("move_link",
		mcp.WithDescription("Move a link of an ordered group to a new index (0..N-1). "+
			"Siblings between the old and the new index shift by one."),
		mcp.WithString("linkId", mcp.Required(), mcp.Description("ID of the link to move")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("New index")),
	), s.moveLink)

	s.mcp.AddTool(mcp.NewTool("remove_link",
		mcp.WithDescription("Remove a link. Siblings after it in an ordered group move down by one."),
		mcp.WithString("linkId", mcp.Required(), mcp.Description("ID of the link to remove")),
	), s.removeLink)

	s.mcp.AddTool(mcp.NewTool("get_group",
		mcp.WithDescription("Return every live link of a source entity and link type, in index order."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source entity ID")),
		mcp.WithString("linkType", mcp.Required(), mcp.Description("Link type ID")),
	), s.getGroup)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List the live outgoing links of an entity."),
		mcp.WithString("entityId", mcp.Required(), mcp.Description("Source entity ID")),
		mcp.WithString("linkType", mcp.Description("Optional link type filter")),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("check_groups",
		mcp.WithDescription("Audit every ordered group and report any whose indexes are not exactly 0..N-1."),
	), s.checkGroups)

	s.mcp.AddTool(mcp.NewTool("search_entities",
		mcp.WithDescription("Full-text search through entity titles and string properties."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchEntities)

	s.mcp.AddTool(mcp.NewTool("get_ordering_contract",
		mcp.WithDescription("Returns the ordering contract and the seed document format. "+
			"Call this before changing ordered groups or importing seed documents."),
	), s.getOrderingContract)

	if importer != nil {
		s.mcp.AddTool(mcp.NewTool("import_seed",
			mcp.WithDescription("Store a YAML seed document in the seed directory and import it. "+
				"Pass the document as content, or as a data: URI or http(s) URL in url. "+
				"Read the contract first via get_ordering_contract or the "+contractURI+" resource."),
			mcp.WithString("content", mcp.Description("YAML seed document")),
			mcp.WithString("url", mcp.Description("data: URI or http(s) URL of a YAML seed document")),
			mcp.WithString("filename", mcp.Description("Optional file name (must end with .yaml or .yml)")),
		), s.importSeed)
	}

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Ordering Contract",
			mcp.WithResourceDescription("How ordered link groups keep dense indexes, and the seed document format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

type linkResult struct {
	Link  *models.Link  `json:"link,omitempty"`
	Group *models.Group `json:"group"`
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) createLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	linkType, err := req.RequireString("linkType")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := linkservice.CreateLinkParams{
		SourceEntityID: source,
		LinkTypeID:     linkType,
		TargetEntityID: target,
		ActorID:        ActorID,
	}
	if _, ok := req.GetArguments()["index"]; ok {
		idx, err := requireIndex(req, "index")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p.Index = &idx
	}

	link, group, err := s.svc.CreateOrderedLink(ctx, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(linkResult{Link: link, Group: group}), nil
}

func (s *Server) moveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("linkId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx, err := requireIndex(req, "index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, group, err := s.svc.UpdateOrderedLinkIndex(ctx, id, idx, ActorID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(linkResult{Link: link, Group: group}), nil
}

// requireIndex reads an integer argument. Unlike RequireInt it refuses
// fractional numbers instead of truncating them.
func requireIndex(req mcp.CallToolRequest, name string) (int, error) {
	v, ok := req.GetArguments()[name]
	if !ok {
		return 0, fmt.Errorf("required argument %q not found", name)
	}
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer, got %s", name, n)
		}
		f = float64(i)
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", name, v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("argument %q must be an integer, got %v", name, f)
	}
	return int(f), nil
}

func (s *Server) removeLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("linkId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	group, err := s.svc.RemoveOrderedLink(ctx, id, ActorID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(linkResult{Group: group}), nil
}

func (s *Server) getGroup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	linkType, err := req.RequireString("linkType")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.svc.GetGroup(ctx, models.GroupKey{SourceEntityID: source, LinkTypeID: linkType})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(g), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entityId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.ListOutgoingLinks(ctx, id, req.GetString("linkType", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no links found"), nil
	}
	return jsonResult(links), nil
}

func (s *Server) checkGroups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reports, err := s.svc.CheckGroups(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var bad []linkservice.GroupReport
	for _, r := range reports {
		if !r.OK() {
			bad = append(bad, r)
		}
	}
	if len(bad) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("all %d ordered groups are contiguous", len(reports))), nil
	}
	res := jsonResult(bad)
	res.IsError = true
	return res, nil
}

func (s *Server) searchEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchEntities(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getOrderingContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OrderingContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     OrderingContract,
		},
	}, nil
}
