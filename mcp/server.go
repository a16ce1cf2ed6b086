// Package mcp provides the MCP (Model Context Protocol) server for archgraph.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/engine"
)

const (
	overviewURI    = "archgraph://overview"
	schemaTemplate = "archgraph://schemas/{tool}"
	schemaPrefix   = "archgraph://schemas/"
)

// Analyzer is the analysis surface the server exposes. *engine.Engine
// implements it.
type Analyzer interface {
	Cycles(ctx context.Context) (*engine.CycleReport, error)
	Layers(ctx context.Context) (*engine.LayerReport, error)
	Clusters(ctx context.Context) (*engine.ClusterReport, error)
	Centrality(ctx context.Context, limit int, betweenness bool) (*engine.CentralityReport, error)
	Debt(ctx context.Context, limit int) ([]analysis.DebtEntry, error)
	FileDebt(ctx context.Context, limit int) (*analysis.FileDebtReport, error)
	Partition(ctx context.Context, agents int, scope []string) (*analysis.Manifest, error)
	Impact(ctx context.Context, req engine.ImpactRequest) (*engine.ImpactReport, error)
	Overview(ctx context.Context) (*engine.Overview, error)
}

// Server represents the MCP server.
type Server struct {
	analyzer Analyzer
	logger   *zap.Logger
	server   *mcp.Server
	tools    map[string]toolEntry
	order    []string
}

// toolEntry keeps what ListTools and CallTool need for one registered tool.
type toolEntry struct {
	tool Tool
	call func(ctx context.Context, raw json.RawMessage) (string, error)
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server.
func NewServer(analyzer Analyzer, version string, opts ...Option) *Server {
	s := &Server{
		analyzer: analyzer,
		logger:   zap.NewNop(),
		tools:    make(map[string]toolEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "archgraph",
		Version: version,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

// addTool registers a typed tool with the SDK server and keeps a JSON entry
// point for CallTool.
func addTool[In any](s *Server, name, description string, handle func(ctx context.Context, in In) (string, error)) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("mcp: schema for %s: %v", name, err))
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		text, err := handle(ctx, in)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			return errorResult(err.Error()), nil, nil
		}
		return textResult(text), nil, nil
	})

	s.tools[name] = toolEntry{
		tool: Tool{Name: name, Description: description, InputSchema: schema},
		call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var in In
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &in); err != nil {
					return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
				}
			}
			return handle(ctx, in)
		},
	}
	s.order = append(s.order, name)
}

// ListTools returns the available tools in registration order.
func (s *Server) ListTools() []Tool {
	tools := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		tools = append(tools, s.tools[name].tool)
	}
	return tools
}

// CallTool invokes a tool by name with JSON-shaped arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	entry, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}
	return entry.call(ctx, raw)
}

// ListResources returns the available resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         overviewURI,
			Name:        "Architecture Overview",
			Description: "Symbol, cycle, layer and cluster summary of the loaded snapshot",
			MimeType:    "text/markdown",
		},
		{
			URI:         schemaTemplate,
			Name:        "Tool Schema",
			Description: "JSON schema for the named tool's arguments",
			MimeType:    "application/schema+json",
		},
	}
}

// ReadResource returns the content of a resource.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch {
	case uri == overviewURI:
		return s.handleOverview(ctx, overviewArgs{})
	case strings.HasPrefix(uri, schemaPrefix):
		return s.toolSchema(strings.TrimPrefix(uri, schemaPrefix))
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) toolSchema(name string) (string, error) {
	entry, ok := s.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool schema: %q", name)
	}
	data, err := json.MarshalIndent(entry.tool.InputSchema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         overviewURI,
		Name:        "Architecture Overview",
		Description: "Symbol, cycle, layer and cluster summary of the loaded snapshot",
		MIMEType:    "text/markdown",
	}, s.readResource("text/markdown"))

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaTemplate,
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, s.readResource("application/schema+json"))
}

func (s *Server) readResource(mimeType string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		text, err := s.ReadResource(ctx, uri)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: mimeType, Text: text},
			},
		}, nil
	}
}

// Run serves MCP over the given streams until the client disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, in io.ReadCloser, out io.WriteCloser) error {
	if in == nil || out == nil {
		return errors.New("mcp: input and output streams are required")
	}
	return s.serve(ctx, &mcp.IOTransport{Reader: in, Writer: out})
}

// RunStdio serves MCP over the process's stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.serve(ctx, &mcp.StdioTransport{})
}

func (s *Server) serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting", zap.Int("tools", len(s.order)))
	err := s.server.Run(ctx, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

// sortedKeys returns the map keys in ascending order.
func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
