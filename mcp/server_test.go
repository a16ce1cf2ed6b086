package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/config"
	"github.com/Benny93/archgraph/internal/engine"
	"github.com/Benny93/archgraph/internal/graph"
	"github.com/Benny93/archgraph/internal/storage"
)

// testSnapshot has an api cycle (1, 2, 3) calling into a storage cycle
// (4, 5, 6) through 3 -> 4.
func testSnapshot() *storage.Snapshot {
	sym := func(id int64, name, file string) graph.Symbol {
		return graph.Symbol{ID: id, Name: name, QualifiedName: "svc." + name, Kind: graph.KindFunction, FilePath: file, LineStart: int(id) * 10, LineEnd: int(id)*10 + 5}
	}
	call := func(src, dst int64) graph.EdgeRow {
		return graph.EdgeRow{SourceID: src, TargetID: dst, Kind: graph.EdgeCall, Line: 1}
	}
	return &storage.Snapshot{
		Symbols: []graph.Symbol{
			sym(1, "Handle", "api/handler.go"),
			sym(2, "Routes", "api/routes.go"),
			sym(3, "Validate", "api/handler.go"),
			sym(4, "Query", "storage/db.go"),
			sym(5, "Get", "storage/cache.go"),
			sym(6, "Open", "storage/db.go"),
		},
		Edges: []graph.EdgeRow{
			call(1, 2), call(2, 3), call(3, 1),
			call(4, 5), call(5, 6), call(6, 4),
			call(3, 4),
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewMemoryBackend()
	require.NoError(t, store.Initialize("", false))
	_, err := store.ReplaceSnapshot(context.Background(), testSnapshot(), "test.json")
	require.NoError(t, err)
	e := engine.New(store, config.DefaultConfig(), engine.WithLogger(zap.NewNop()))
	return NewServer(e, "test", WithLogger(zap.NewNop()))
}

// failingAnalyzer fails every analysis it overrides; the embedded nil
// interface panics on anything else.
type failingAnalyzer struct {
	Analyzer
	err error
}

func (f *failingAnalyzer) Cycles(context.Context) (*engine.CycleReport, error) {
	return nil, f.err
}

func (f *failingAnalyzer) Overview(context.Context) (*engine.Overview, error) {
	return nil, f.err
}

func (f *failingAnalyzer) Partition(context.Context, int, []string) (*analysis.Manifest, error) {
	return nil, f.err
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("CreatesServer", func(t *testing.T) {
		server := newTestServer(t)

		assert.NotNil(t, server)
		assert.NotNil(t, server.analyzer)
		assert.NotNil(t, server.server)
	})
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	t.Run("ListTools", func(t *testing.T) {
		tools := server.ListTools()

		toolNames := make(map[string]bool)
		for _, tool := range tools {
			toolNames[tool.Name] = true
		}

		expectedTools := []string{
			"archgraph_cycles",
			"archgraph_layers",
			"archgraph_clusters",
			"archgraph_metrics",
			"archgraph_debt",
			"archgraph_partition",
			"archgraph_impact",
			"archgraph_overview",
		}

		assert.Len(t, tools, len(expectedTools))
		for _, expected := range expectedTools {
			assert.True(t, toolNames[expected], "Should have tool: %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			assert.NotEmpty(t, tool.Description)
			require.NotNil(t, tool.InputSchema)
			assert.Equal(t, "object", tool.InputSchema.Type)
		}
	})

	t.Run("ImpactSchemaProperties", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			if tool.Name != "archgraph_impact" {
				continue
			}
			assert.Contains(t, tool.InputSchema.Properties, "symbol")
			assert.Contains(t, tool.InputSchema.Properties, "files")
			assert.Contains(t, tool.InputSchema.Properties, "depth")
			assert.Empty(t, tool.InputSchema.Required)
		}
	})
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx := context.Background()

	t.Run("Overview", func(t *testing.T) {
		result, err := server.CallTool(ctx, "archgraph_overview", map[string]any{})
		require.NoError(t, err)
		assert.Contains(t, result, "Symbols: 6")
		assert.Contains(t, result, "Cycles: 2")
		assert.Contains(t, result, "test.json")
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		result, err := server.CallTool(ctx, "archgraph_metrics", map[string]any{"limit": "ten"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid arguments")
		assert.Empty(t, result)
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "unknown_tool", map[string]any{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})

	t.Run("AnalysisError", func(t *testing.T) {
		failing := NewServer(&failingAnalyzer{err: errors.New("boom")}, "test")

		_, err := failing.CallTool(ctx, "archgraph_cycles", nil)
		assert.EqualError(t, err, "boom")
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	t.Run("ListResources", func(t *testing.T) {
		uris := make(map[string]bool)
		for _, res := range server.ListResources() {
			uris[res.URI] = true
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MimeType)
		}

		assert.True(t, uris["archgraph://overview"])
		assert.True(t, uris["archgraph://schemas/{tool}"])
	})
}

func TestServer_HandleResourceReads(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx := context.Background()

	t.Run("ReadOverview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "archgraph://overview")
		require.NoError(t, err)
		assert.Contains(t, content, "# Architecture Overview")
		assert.Contains(t, content, "Most central symbols")
	})

	t.Run("ReadSchema", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "archgraph://schemas/archgraph_partition")
		require.NoError(t, err)
		assert.Contains(t, content, `"agents"`)
		assert.Contains(t, content, `"scope"`)
	})

	t.Run("ReadUnknownSchema", func(t *testing.T) {
		_, err := server.ReadResource(ctx, "archgraph://schemas/nope")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool schema")
	})

	t.Run("ReadUnknownResource", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "archgraph://unknown")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

func TestServer_Session(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	t.Run("ListTools", func(t *testing.T) {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		require.NoError(t, err)
		assert.Len(t, res.Tools, 8)
	})

	t.Run("CallTool", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "archgraph_impact",
			Arguments: map[string]any{"symbol": "Query", "depth": 1},
		})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		require.Len(t, res.Content, 1)

		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, "Validate")
		assert.Contains(t, text.Text, "Open")
		assert.NotContains(t, text.Text, "Handle")
	})

	t.Run("ReadResource", func(t *testing.T) {
		res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "archgraph://schemas/archgraph_impact"})
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.True(t, strings.Contains(res.Contents[0].Text, `"symbol"`))
	})
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	server := NewServer(&failingAnalyzer{}, "test")

	t.Run("RunWithNilStreams", func(t *testing.T) {
		err := server.Run(context.Background(), nil, nil)
		assert.Error(t, err)
	})
}
