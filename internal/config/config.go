// Package config loads the Archgraph configuration from
// .archgraph/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Benny93/archgraph/internal/analysis"
	"github.com/Benny93/archgraph/internal/graph"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// DirName is the per-repository state directory.
	DirName = ".archgraph"

	// FileName is the config file inside DirName.
	FileName = "config.yaml"
)

// Config holds all Archgraph configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	Graph       GraphConfig       `yaml:"graph"`
	Cycles      CyclesConfig      `yaml:"cycles"`
	PageRank    PageRankConfig    `yaml:"pagerank"`
	Betweenness BetweennessConfig `yaml:"betweenness"`
	Clusters    ClustersConfig    `yaml:"clusters"`
	Partition   PartitionConfig   `yaml:"partition"`
	History     HistoryConfig     `yaml:"history"`
	Complexity  ComplexityConfig  `yaml:"complexity"`
	Watch       WatchConfig       `yaml:"watch"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// StorageConfig locates the Badger database.
type StorageConfig struct {
	// Path is relative to the repository root unless absolute.
	Path string `yaml:"path"`
}

// GraphConfig selects which edges enter the graph.
type GraphConfig struct {
	// EdgeKinds restricts the graph to these kinds. Empty means all.
	EdgeKinds []string `yaml:"edge_kinds"`
}

// CyclesConfig configures cycle detection.
type CyclesConfig struct {
	MinSize int `yaml:"min_size"`
}

// PageRankConfig configures PageRank.
type PageRankConfig struct {
	Flow          string  `yaml:"flow"` // both, forward, reverse
	Damping       float64 `yaml:"damping"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	Adaptive      bool    `yaml:"adaptive"`
}

// BetweennessConfig configures betweenness centrality.
type BetweennessConfig struct {
	ExactLimit int `yaml:"exact_limit"`
}

// ClustersConfig configures community detection.
type ClustersConfig struct {
	Resolution float64 `yaml:"resolution"`
	MaxPasses  int     `yaml:"max_passes"`
}

// PartitionConfig configures the partition engine.
type PartitionConfig struct {
	// Agents is the default agent count; 0 derives it from the cluster count.
	Agents  int                        `yaml:"agents"`
	Weights analysis.DifficultyWeights `yaml:"weights"`
	Risk    analysis.RiskThresholds    `yaml:"risk"`
}

// HistoryConfig configures git history mining.
type HistoryConfig struct {
	Months            int `yaml:"months"`
	MaxFilesPerCommit int `yaml:"max_files_per_commit"`
	MinCochange       int `yaml:"min_cochange"`
}

// ComplexityConfig configures cyclomatic complexity analysis.
type ComplexityConfig struct {
	// Ignore is a regular expression matched against file paths.
	Ignore string `yaml:"ignore"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter"`  // none, stdout
	MetricExporter string `yaml:"metric_exporter"` // none, stdout, prometheus
	MetricsAddr    string `yaml:"metrics_addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	pr := analysis.DefaultPageRankOptions()
	co := analysis.DefaultClusterOptions()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Storage: StorageConfig{Path: filepath.Join(DirName, "db")},
		Cycles:  CyclesConfig{MinSize: analysis.DefaultMinCycleSize},
		PageRank: PageRankConfig{
			Flow:          string(pr.Flow),
			Damping:       pr.Damping,
			MaxIterations: pr.MaxIterations,
			Tolerance:     pr.Tolerance,
		},
		Betweenness: BetweennessConfig{ExactLimit: analysis.DefaultBetweennessOptions().ExactLimit},
		Clusters:    ClustersConfig{Resolution: co.Resolution, MaxPasses: co.MaxPasses},
		Partition: PartitionConfig{
			Weights: analysis.DefaultDifficultyWeights(),
			Risk:    analysis.DefaultRiskThresholds(),
		},
		History: HistoryConfig{Months: 6, MaxFilesPerCommit: 50, MinCochange: 3},
		Complexity: ComplexityConfig{
			Ignore: `(^|/)(vendor|testdata|_examples)/`,
		},
		Watch: WatchConfig{Debounce: "500ms"},
		Telemetry: TelemetryConfig{
			ServiceName:    "archgraph",
			TraceExporter:  "none",
			MetricExporter: "none",
			MetricsAddr:    "127.0.0.1:9464",
		},
	}
}

// DefaultPath returns the config path for a repository root.
func DefaultPath(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARCHGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARCHGRAPH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ARCHGRAPH_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("ARCHGRAPH_TRACE_EXPORTER"); v != "" {
		c.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("ARCHGRAPH_METRIC_EXPORTER"); v != "" {
		c.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("ARCHGRAPH_METRICS_ADDR"); v != "" {
		c.Telemetry.MetricsAddr = v
	}
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	for _, k := range c.Graph.EdgeKinds {
		if _, ok := graph.ParseEdgeKind(k); !ok {
			return invalid("unknown edge kind %q", k)
		}
	}
	if c.Cycles.MinSize < 1 {
		return invalid("cycles.min_size must be >= 1, got %d", c.Cycles.MinSize)
	}
	switch analysis.Flow(c.PageRank.Flow) {
	case analysis.FlowBoth, analysis.FlowForward, analysis.FlowReverse:
	default:
		return invalid("pagerank.flow must be both, forward or reverse, got %q", c.PageRank.Flow)
	}
	if c.PageRank.Damping <= 0 || c.PageRank.Damping >= 1 {
		return invalid("pagerank.damping must be in (0, 1), got %v", c.PageRank.Damping)
	}
	if c.PageRank.MaxIterations < 1 {
		return invalid("pagerank.max_iterations must be >= 1")
	}
	if c.PageRank.Tolerance <= 0 {
		return invalid("pagerank.tolerance must be > 0")
	}
	if c.Betweenness.ExactLimit < 1 {
		return invalid("betweenness.exact_limit must be >= 1")
	}
	if c.Clusters.Resolution <= 0 {
		return invalid("clusters.resolution must be > 0")
	}
	if c.Clusters.MaxPasses < 1 {
		return invalid("clusters.max_passes must be >= 1")
	}
	if c.Partition.Agents < 0 {
		return invalid("partition.agents must be >= 0")
	}
	w := c.Partition.Weights
	if w.Complexity < 0 || w.Coupling < 0 || w.Churn < 0 || w.Size < 0 {
		return invalid("partition.weights must not be negative")
	}
	if c.History.Months < 1 {
		return invalid("history.months must be >= 1")
	}
	if c.History.MaxFilesPerCommit < 2 {
		return invalid("history.max_files_per_commit must be >= 2")
	}
	if _, err := c.IgnorePattern(); err != nil {
		return invalid("complexity.ignore: %v", err)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d <= 0 {
		return invalid("watch.debounce must be a positive duration, got %q", c.Watch.Debounce)
	}
	switch c.Telemetry.TraceExporter {
	case "", "none", "stdout":
	default:
		return invalid("telemetry.trace_exporter must be none or stdout, got %q", c.Telemetry.TraceExporter)
	}
	switch c.Telemetry.MetricExporter {
	case "", "none", "stdout", "prometheus":
	default:
		return invalid("telemetry.metric_exporter must be none, stdout or prometheus, got %q", c.Telemetry.MetricExporter)
	}
	return nil
}

// EdgeKinds returns the configured edge kinds, nil meaning all.
func (c *Config) EdgeKinds() []graph.EdgeKind {
	if len(c.Graph.EdgeKinds) == 0 {
		return nil
	}
	kinds := make([]graph.EdgeKind, 0, len(c.Graph.EdgeKinds))
	for _, k := range c.Graph.EdgeKinds {
		if kind, ok := graph.ParseEdgeKind(k); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// PageRankOptions converts the pagerank section.
func (c *Config) PageRankOptions() analysis.PageRankOptions {
	return analysis.PageRankOptions{
		Flow:          analysis.Flow(c.PageRank.Flow),
		Damping:       c.PageRank.Damping,
		MaxIterations: c.PageRank.MaxIterations,
		Tolerance:     c.PageRank.Tolerance,
		Adaptive:      c.PageRank.Adaptive,
	}
}

// BetweennessOptions converts the betweenness section.
func (c *Config) BetweennessOptions() analysis.BetweennessOptions {
	return analysis.BetweennessOptions{ExactLimit: c.Betweenness.ExactLimit}
}

// ClusterOptions converts the clusters section.
func (c *Config) ClusterOptions() analysis.ClusterOptions {
	return analysis.ClusterOptions{Resolution: c.Clusters.Resolution, MaxPasses: c.Clusters.MaxPasses}
}

// IgnorePattern compiles complexity.ignore; nil when empty.
func (c *Config) IgnorePattern() (*regexp.Regexp, error) {
	if c.Complexity.Ignore == "" {
		return nil, nil
	}
	return regexp.Compile(c.Complexity.Ignore)
}

// DebounceDuration returns watch.debounce, 500ms when unparsable.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// StoragePath resolves storage.path against the repository root.
func (c *Config) StoragePath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(root, c.Storage.Path)
}
