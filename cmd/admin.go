package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Benny93/archgraph/internal/config"
)

// StatusCmd shows index status for the repository.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	if a.json {
		return a.printJSON(stats)
	}

	a.header("Index status for %s", a.root)
	if stats.Snapshot != nil {
		a.printf("  Snapshot:       %s\n", stats.Snapshot.ID)
		a.printf("  Source:         %s\n", stats.Snapshot.Source)
		a.printf("  Imported:       %s\n", stats.Snapshot.ImportedAt.Format("2006-01-02 15:04:05"))
	} else {
		a.warn("  No snapshot imported")
	}
	a.printf("  Symbols:        %d\n", stats.Symbols)
	a.printf("  Edges:          %d\n", stats.Edges)
	a.printf("  Files:          %d\n", stats.Files)
	a.printf("  Co-change:      %d\n", stats.CoChangePairs)
	a.printf("  Complexity:     %d\n", stats.Complexity)
	a.printf("  Cached metrics: %d\n", stats.Metrics)
	return nil
}

// CleanCmd deletes the index for the repository.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	dbPath := a.cfg.StoragePath(a.root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("%w at %s. Nothing to clean", ErrNoIndex, a.root)
	}

	if !c.Force {
		a.printf("Delete index at %s? [y/N] ", dbPath)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			a.printf("Aborted\n")
			return nil
		}
	}

	if err := os.RemoveAll(dbPath); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}
	a.success("Deleted %s", dbPath)
	return nil
}

// SetupCmd writes the default config and MCP client configuration.
type SetupCmd struct {
	Init     bool   `help:"Write the default .archgraph/config.yaml"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the client configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	ctx := context.Background()
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if c.Init {
		path := config.DefaultPath(a.root)
		if _, err := os.Stat(path); err == nil {
			a.warn("Config already exists at %s", path)
		} else {
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			a.success("✓ Created %s", path)
		}
	}

	if !c.Claude && !c.Cursor {
		if c.Init {
			return nil
		}
		return c.printConfig(a)
	}

	if !c.Local && !c.Global {
		c.Local = true
	}
	for _, client := range []struct {
		name    string
		enabled bool
	}{{"claude", c.Claude}, {"cursor", c.Cursor}} {
		if !client.enabled {
			continue
		}
		if err := c.setupClient(a, client.name); err != nil {
			return err
		}
	}
	return nil
}

func (c *SetupCmd) printConfig(a *app) error {
	cfg := mcpConfig(a.root)
	if c.Format == "json" {
		return a.printJSON(cfg)
	}
	a.printf("# Add this to your MCP client configuration:\n\n")
	for key, value := range cfg {
		a.printf("%s: %s\n", key, toJSON(value))
	}
	return nil
}

func (c *SetupCmd) setupClient(a *app, client string) error {
	cfg := mcpConfig(a.root)

	if c.Global {
		path := globalConfigPath(client)
		if err := writeClientConfig(path, cfg, c.Format); err != nil {
			return err
		}
		a.success("✓ Created global %s MCP config at %s", client, path)
	}

	if c.Local {
		dir := filepath.Join(a.root, clientConfigDir(client))
		if c.FilePath != "" {
			dir = c.FilePath
		}
		path := filepath.Join(dir, "mcp.json")
		if err := writeClientConfig(path, cfg, c.Format); err != nil {
			return err
		}
		a.success("✓ Created local %s MCP config at %s", client, path)
	}
	return nil
}

// mcpConfig is the client entry that launches "archgraph serve --watch".
func mcpConfig(root string) map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"archgraph": map[string]any{
				"command": "archgraph",
				"args":    []string{"--repo", root, "serve", "--watch"},
			},
		},
	}
}

func clientConfigDir(client string) string {
	switch client {
	case "cursor":
		return ".cursor"
	default:
		return ".claude"
	}
}

func globalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, clientConfigDir(client), "global", "mcp.json")
}

func writeClientConfig(path string, cfg map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	if format == "json" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(data, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString("# MCP configuration for archgraph\n")
		sb.WriteString("# Generated by archgraph setup\n\n")
		for key, value := range cfg {
			fmt.Fprintf(&sb, "%s: %s\n", key, toJSON(value))
		}
		content = []byte(sb.String())
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func toJSON(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
