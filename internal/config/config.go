package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Backend string

const (
	BackendAthena   Backend = "athena"
	BackendDuckDB   Backend = "duckdb"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Dataset       DatasetConfig
	Engine        EngineConfig
	Athena        AthenaConfig
	DuckDB        DuckDBConfig
	Postgres      PostgresConfig
	Agent         AgentConfig
	AI            AIConfig
	ObjectStore   ObjectStoreConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatasetConfig struct {
	Database string
	Table    string
}

// AllowedTables returns the qualified and bare table names queries may reference.
func (d DatasetConfig) AllowedTables() []string {
	if d.Database == "" {
		return []string{d.Table}
	}
	return []string{d.Database + "." + d.Table, d.Table}
}

// QualifiedTable is the table name used by generated and templated queries.
func (d DatasetConfig) QualifiedTable() string {
	if d.Database == "" {
		return d.Table
	}
	return d.Database + "." + d.Table
}

type EngineConfig struct {
	Backend      Backend
	PollInterval time.Duration
	// QueryTimeout bounds a single execution including polling. Zero disables it.
	QueryTimeout time.Duration
}

type AthenaConfig struct {
	Region          string
	OutputLocation  string
	WorkGroup       string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type DuckDBConfig struct {
	Files      []string
	ObjectKeys []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AgentConfig struct {
	MaxAttempts         int
	HistorySize         int
	RetryOnZeroRows     bool
	SchemaEnrichment    bool
	EnrichmentColumns   []string
	EnrichmentMaxValues int
	HeaderSentinel      string
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ArchiveConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("OPSASSIST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid OPSASSIST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var backend string
	appliers := []func() error{
		func() error { return applyString(lookup, "OPSASSIST_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "OPSASSIST_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "OPSASSIST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "OPSASSIST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "OPSASSIST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "OPSASSIST_DATABASE", &cfg.Dataset.Database) },
		func() error { return applyString(lookup, "OPSASSIST_TABLE", &cfg.Dataset.Table) },
		func() error { return applyString(lookup, "OPSASSIST_ENGINE_BACKEND", &backend) },
		func() error { return applyDuration(lookup, "OPSASSIST_ENGINE_POLL_INTERVAL", &cfg.Engine.PollInterval) },
		func() error { return applyDuration(lookup, "OPSASSIST_ENGINE_QUERY_TIMEOUT", &cfg.Engine.QueryTimeout) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_REGION", &cfg.Athena.Region) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_OUTPUT", &cfg.Athena.OutputLocation) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_WORKGROUP", &cfg.Athena.WorkGroup) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_PROFILE", &cfg.Athena.Profile) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_ACCESS_KEY", &cfg.Athena.AccessKeyID) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_SECRET_KEY", &cfg.Athena.SecretAccessKey) },
		func() error { return applyString(lookup, "OPSASSIST_ATHENA_SESSION_TOKEN", &cfg.Athena.SessionToken) },
		func() error { return applyList(lookup, "OPSASSIST_DUCKDB_FILES", &cfg.DuckDB.Files) },
		func() error { return applyList(lookup, "OPSASSIST_DUCKDB_OBJECT_KEYS", &cfg.DuckDB.ObjectKeys) },
		func() error { return applyString(lookup, "OPSASSIST_POSTGRES_DSN", &cfg.Postgres.DSN) },
		func() error { return applyInt(lookup, "OPSASSIST_POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns) },
		func() error { return applyInt(lookup, "OPSASSIST_POSTGRES_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "OPSASSIST_POSTGRES_CONN_MAX_IDLE_TIME", &cfg.Postgres.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "OPSASSIST_POSTGRES_CONN_MAX_LIFETIME", &cfg.Postgres.ConnMaxLifetime)
		},
		func() error { return applyInt(lookup, "OPSASSIST_MAX_SQL_RETRIES", &cfg.Agent.MaxAttempts) },
		func() error { return applyInt(lookup, "OPSASSIST_CONVERSATION_HISTORY_SIZE", &cfg.Agent.HistorySize) },
		func() error { return applyBool(lookup, "OPSASSIST_RETRY_ON_ZERO_ROWS", &cfg.Agent.RetryOnZeroRows) },
		func() error { return applyBool(lookup, "OPSASSIST_SCHEMA_ENRICHMENT", &cfg.Agent.SchemaEnrichment) },
		func() error {
			return applyList(lookup, "OPSASSIST_SCHEMA_ENRICHMENT_COLUMNS", &cfg.Agent.EnrichmentColumns)
		},
		func() error {
			return applyInt(lookup, "OPSASSIST_SCHEMA_ENRICHMENT_MAX_VALUES", &cfg.Agent.EnrichmentMaxValues)
		},
		func() error { return applyString(lookup, "OPSASSIST_HEADER_SENTINEL", &cfg.Agent.HeaderSentinel) },
		func() error { return applyString(lookup, "OPSASSIST_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "OPSASSIST_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "OPSASSIST_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "OPSASSIST_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "OPSASSIST_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "OPSASSIST_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyDuration(lookup, "OPSASSIST_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "OPSASSIST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "OPSASSIST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "OPSASSIST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "OPSASSIST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "OPSASSIST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "OPSASSIST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "OPSASSIST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "OPSASSIST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "OPSASSIST_ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return applyBool(lookup, "OPSASSIST_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "OPSASSIST_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "OPSASSIST_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "OPSASSIST_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	if backend != "" {
		cfg.Engine.Backend = Backend(strings.ToLower(backend))
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Dataset.Table == "" {
		return fmt.Errorf("dataset table is required")
	}
	switch c.Engine.Backend {
	case BackendAthena, BackendDuckDB, BackendPostgres:
	default:
		return fmt.Errorf("invalid OPSASSIST_ENGINE_BACKEND: %q", c.Engine.Backend)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine poll interval must be > 0")
	}
	if c.Agent.MaxAttempts < 1 {
		return fmt.Errorf("OPSASSIST_MAX_SQL_RETRIES must be >= 1")
	}
	if c.Agent.HistorySize < 0 {
		return fmt.Errorf("OPSASSIST_CONVERSATION_HISTORY_SIZE must be >= 0")
	}
	if c.Agent.EnrichmentMaxValues < 1 {
		return fmt.Errorf("OPSASSIST_SCHEMA_ENRICHMENT_MAX_VALUES must be >= 1")
	}
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid OPSASSIST_AI_PROVIDER: %q", c.AI.Provider)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "opsassist"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Dataset: DatasetConfig{
			Database: "ops_data",
			Table:    "tickets",
		},
		Engine: EngineConfig{
			Backend:      BackendAthena,
			PollInterval: time.Second,
		},
		Athena: AthenaConfig{
			Region:         "us-east-1",
			OutputLocation: "s3://enterprise-ai-ops-assistant-data/athena-results/",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Agent: AgentConfig{
			MaxAttempts:         5,
			HistorySize:         2,
			RetryOnZeroRows:     true,
			SchemaEnrichment:    true,
			EnrichmentColumns:   []string{"category", "priority", "ticket_type", "assigned_to"},
			EnrichmentMaxValues: 50,
			HeaderSentinel:      "ticket_id",
		},
		AI: AIConfig{
			Provider:    "openai",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "opsassist",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Engine.PollInterval = 10 * time.Millisecond
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList splits a comma-separated value, dropping blank entries.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

// applyBool accepts strconv booleans plus "yes"/"no".
func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		*dst = true
		return nil
	case "no":
		*dst = false
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
