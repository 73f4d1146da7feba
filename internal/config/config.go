// Package config loads the router's YAML configuration file into typed
// settings: server/listen options, request limits, traffic shaping per
// subgraph, introspection gating, override-label expressions, the
// supergraph source, and telemetry.
//
// Grounded on server/gateway.go's loadGatewaySetting (os.Open -> io.ReadAll
// -> yaml.Unmarshal against a struct tagged with `yaml:"..."`), extended
// from the teacher's flat GatewayOption into the nested Config this build's
// larger surface needs.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-yaml"
)

// ServerConfig is the HTTP transport's listen and CORS configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	TimeoutDuration string   `yaml:"timeout_duration" default:"5s"`
	CORSOrigins     []string `yaml:"cors_origins"`
	CORSMethods     []string `yaml:"cors_methods"`
	CORSHeaders     []string `yaml:"cors_headers"`
}

// LimitsConfig bounds request parsing and body size.
type LimitsConfig struct {
	MaxTokens         int   `yaml:"max_tokens"`
	MaxBodyBytes      int64 `yaml:"max_body_bytes" default:"1048576"`
	MaxQueryDepth     int   `yaml:"max_query_depth"`
	MaxQueryBreadth   int   `yaml:"max_query_breadth"`
}

// QueryPlannerConfig bounds plan construction and caching.
type QueryPlannerConfig struct {
	TimeoutDuration  string `yaml:"timeout_duration" default:"10s"`
	PlanCacheSize    int    `yaml:"plan_cache_size" default:"1000"`
	ParseCacheSize   int    `yaml:"parse_cache_size" default:"1000"`
	ValidateCacheSize int   `yaml:"validate_cache_size" default:"1000"`
	NormalizeCacheSize int  `yaml:"normalize_cache_size" default:"1000"`
}

// SubgraphTrafficShaping bounds one subgraph's dispatch behavior: timeout,
// retry policy, and max in-flight connections.
type SubgraphTrafficShaping struct {
	TimeoutDuration    string  `yaml:"timeout_duration" default:"5s"`
	MaxRetries         int     `yaml:"max_retries" default:"0"`
	InitialDelay       string  `yaml:"initial_delay" default:"100ms"`
	BackoffFactor      float64 `yaml:"backoff_factor" default:"2.0"`
	MaxDelay           string  `yaml:"max_delay" default:"5s"`
	MaxConnsPerHost    int     `yaml:"max_conns_per_host" default:"100"`
	DedupeEnabled      bool    `yaml:"dedupe_enabled" default:"true"`
}

// IntrospectionConfig is either a flat bool or a compiled gating
// expression evaluated per-request against claims/variables.
type IntrospectionConfig struct {
	Enabled    bool   `yaml:"enabled" default:"true"`
	Expression string `yaml:"expression"`

	compiled *vm.Program
}

// OverrideExpr is one progressive-override label's gating expression,
// e.g. "percentage(20)" or "env == \"staging\"", compiled once at load
// time via expr-lang/expr.
type OverrideExpr struct {
	Expression string `yaml:"expression"`

	compiled *vm.Program
}

// ProgressiveOverrideConfig bounds the percentage-based rollout RNG seed,
// letting deployments make rollout decisions reproducible in tests.
type ProgressiveOverrideConfig struct {
	Enabled bool  `yaml:"enabled" default:"false"`
	Seed    int64 `yaml:"seed"`
}

// SubgraphEndpoint names one subgraph's GraphQL host, queried for its own
// SDL via `{ _service { sdl } }` when the supergraph source runs in
// "remote" mode instead of reading a pre-composed file.
type SubgraphEndpoint struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
}

// SubgraphManifestEntry is one subgraph's name, upstream host, and the SDL
// files composing its schema, as listed inside the file a "file"-mode
// supergraph source watches.
//
// Grounded directly on gateway/gateway.go's GatewayService/GatewayOption.
// The teacher reads this shape once at process start and never revisits
// it; here it is the payload a FileSupergraphSource re-reads on every
// change, so the manifest format is unchanged but its lifecycle is not.
type SubgraphManifestEntry struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

// ParseSubgraphManifest decodes a file-mode supergraph source's watched
// file into its list of subgraph entries.
func ParseSubgraphManifest(content []byte) ([]SubgraphManifestEntry, error) {
	var manifest struct {
		Subgraphs []SubgraphManifestEntry `yaml:"subgraphs"`
	}
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("config: parsing subgraph manifest: %w", err)
	}
	return manifest.Subgraphs, nil
}

// SupergraphSourceConfig points at the composed SDL this router serves, or
// at the set of subgraphs to compose it from directly.
type SupergraphSourceConfig struct {
	Mode            string             `yaml:"mode" default:"file"`
	Path            string             `yaml:"path"`
	PollInterval    string             `yaml:"poll_interval" default:"5s"`
	WatchFilesystem bool               `yaml:"watch_filesystem" default:"true"`
	Subgraphs       []SubgraphEndpoint `yaml:"subgraphs"`
	FetchRetries    int                `yaml:"fetch_retries" default:"3"`
	FetchTimeout    string             `yaml:"fetch_timeout" default:"5s"`
}

// TelemetryConfig controls metrics exposure and trace export.
type TelemetryConfig struct {
	ServiceName      string `yaml:"service_name" default:"federation-router"`
	MetricsEnabled   bool   `yaml:"metrics_enabled" default:"true"`
	TracingEnabled   bool   `yaml:"tracing_enabled" default:"false"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
}

// Config is the router's full configuration surface, loaded once at
// startup from a YAML file.
type Config struct {
	Server              ServerConfig                      `yaml:"server"`
	Limits              LimitsConfig                      `yaml:"limits"`
	QueryPlanner        QueryPlannerConfig                `yaml:"query_planner"`
	TrafficShaping      map[string]SubgraphTrafficShaping  `yaml:"traffic_shaping"`
	TrafficShapingDefault SubgraphTrafficShaping           `yaml:"traffic_shaping_default"`
	Introspection       IntrospectionConfig                `yaml:"introspection"`
	OverrideLabels      map[string]OverrideExpr             `yaml:"override_labels"`
	ProgressiveOverride ProgressiveOverrideConfig           `yaml:"progressive_override"`
	Supergraph          SupergraphSourceConfig              `yaml:"supergraph"`
	Telemetry           TelemetryConfig                     `yaml:"telemetry"`
}

// LoadConfig reads path, unmarshals it into a Config (unknown YAML keys
// are ignored, matching the teacher loader's forward-compatibility), and
// compiles every boolean-expression field.
//
// Grounded on server/gateway.go's loadGatewaySetting; extended with
// cross-field validation the teacher's flat settings struct never needed.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %q: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	if err := cfg.compile(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) compile() error {
	if c.Introspection.Expression != "" {
		program, err := expr.Compile(c.Introspection.Expression, expr.AsBool())
		if err != nil {
			return fmt.Errorf("config: compiling introspection.expression: %w", err)
		}
		c.Introspection.compiled = program
	}
	for label, override := range c.OverrideLabels {
		program, err := expr.Compile(override.Expression, expr.AsBool())
		if err != nil {
			return fmt.Errorf("config: compiling override_labels[%q]: %w", label, err)
		}
		override.compiled = program
		c.OverrideLabels[label] = override
	}
	return nil
}

func (c *Config) validate() error {
	for name, shaping := range c.TrafficShaping {
		if shaping.MaxRetries < 0 {
			return fmt.Errorf("config: traffic_shaping[%q].max_retries must be >= 0", name)
		}
	}
	if c.TrafficShapingDefault.MaxRetries < 0 {
		return fmt.Errorf("config: traffic_shaping_default.max_retries must be >= 0")
	}
	if c.ProgressiveOverride.Enabled && c.ProgressiveOverride.Seed == 0 {
		return fmt.Errorf("config: progressive_override.seed must be set when progressive_override.enabled")
	}
	switch c.Supergraph.Mode {
	case "", "file", "remote":
	default:
		return fmt.Errorf("config: supergraph.mode %q must be \"file\" or \"remote\"", c.Supergraph.Mode)
	}
	if c.Supergraph.Mode == "remote" && len(c.Supergraph.Subgraphs) == 0 {
		return fmt.Errorf("config: supergraph.subgraphs must be non-empty when supergraph.mode is \"remote\"")
	}
	return nil
}

// Eval runs the compiled introspection gating expression against env,
// falling back to the flat Enabled flag when no expression was configured.
func (ic IntrospectionConfig) Eval(env map[string]any) (bool, error) {
	if ic.compiled == nil {
		return ic.Enabled, nil
	}
	out, err := expr.Run(ic.compiled, env)
	if err != nil {
		return false, fmt.Errorf("config: evaluating introspection.expression: %w", err)
	}
	b, _ := out.(bool)
	return b, nil
}

// Eval runs one override label's compiled expression against env.
func (oe OverrideExpr) Eval(env map[string]any) (bool, error) {
	if oe.compiled == nil {
		return false, fmt.Errorf("config: override expression %q was never compiled", oe.Expression)
	}
	out, err := expr.Run(oe.compiled, env)
	if err != nil {
		return false, fmt.Errorf("config: evaluating override expression %q: %w", oe.Expression, err)
	}
	b, _ := out.(bool)
	return b, nil
}

// TrafficShapingFor returns the per-subgraph override if configured, else
// the shared default.
func (c *Config) TrafficShapingFor(subgraph string) SubgraphTrafficShaping {
	if shaping, ok := c.TrafficShaping[subgraph]; ok {
		return shaping
	}
	return c.TrafficShapingDefault
}
