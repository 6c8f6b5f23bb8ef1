package domain

// Config holds the complete Talon configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Analysis holds the default detection parameters. Per-request params
	// override these for a single run.
	Analysis AnalysisConfig `json:"analysis"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Worker settings for asynchronous analysis
	Worker WorkerConfig `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// AnalysisConfig holds default detection-engine parameters.
type AnalysisConfig struct {
	// Mode selects bounded or exhaustive cycle enumeration.
	Mode AnalysisMode `json:"mode"`

	// MaxCycleLength is the suspicious-cycle bound (participants).
	MaxCycleLength int `json:"maxCycleLength"`

	// HighRiskThreshold is the centrality score above which a node is
	// flagged high risk (strict inequality).
	HighRiskThreshold float64 `json:"highRiskThreshold"`

	// MaxCycles caps the enumerated cycle census (0 = unlimited).
	MaxCycles int `json:"maxCycles"`

	// Workers bounds parallel centrality sweeps (0 = GOMAXPROCS).
	Workers int `json:"workers"`
}

// Resolve fills zero-valued request params from the configured defaults.
func (c AnalysisConfig) Resolve(p *AnalysisParams) AnalysisParams {
	out := AnalysisParams{
		MaxCycleLength:    c.MaxCycleLength,
		HighRiskThreshold: c.HighRiskThreshold,
		Mode:              c.Mode,
		MaxCycles:         c.MaxCycles,
		Workers:           c.Workers,
	}
	if p == nil {
		return out
	}
	if p.MaxCycleLength > 0 {
		out.MaxCycleLength = p.MaxCycleLength
	}
	if p.HighRiskThreshold > 0 {
		out.HighRiskThreshold = p.HighRiskThreshold
	}
	if p.Mode != "" {
		out.Mode = p.Mode
	}
	if p.MaxCycles > 0 {
		out.MaxCycles = p.MaxCycles
	}
	if p.Workers > 0 {
		out.Workers = p.Workers
	}
	return out
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// WorkerConfig holds async worker settings.
type WorkerConfig struct {
	Enabled bool `json:"enabled"`

	// TenantIDs the worker subscribes for. Empty means the default tenant.
	TenantIDs []string `json:"tenantIds"`

	// Concurrency bounds simultaneous analysis runs per subscription.
	Concurrency int `json:"concurrency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Analysis: AnalysisConfig{
			Mode:              ModeBounded,
			MaxCycleLength:    5,
			HighRiskThreshold: 0.1,
			MaxCycles:         100000,
			Workers:           0,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./talon.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled:     false,
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "talon",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "talon",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
