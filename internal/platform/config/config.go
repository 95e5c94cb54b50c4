// Package config resolves vong configuration from flags, environment
// variables, a .env file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nathantilsley/vongform/internal/platform/logger"
	"github.com/nathantilsley/vongform/internal/platform/telemetry"
	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

// Store backends selectable with --store.
const (
	StoreConsul = "consul"
	StoreNATS   = "nats"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds the resolved configuration for one invocation.
type Config struct {
	OutputDir    string
	Repository   string
	Store        string
	Prefix       string
	ValuesPrefix string
	ChartName    string
	ChartVersion string
	StoreTimeout time.Duration

	ConsulAddr string // empty uses CONSUL_HTTP_ADDR or the client default
	NATSURL    string
	NATSBucket string
	SQLitePath string

	ShowDiff   bool
	DryRun     bool
	UpdateDeps bool

	LogLevel        string
	MetricsTextfile string

	// OpenTelemetry (optional)
	OTelEnabled  bool   // OTEL_ENABLED feature flag
	OTelExporter string // OTEL_EXPORTER: otlp or stdout
}

type setting struct {
	key   string // viper key and flag name
	env   string
	short string
	def   any
	usage string
}

var settings = []setting{
	{"output", "VONGFORM_OUTPUT_DIR", "o", "./chart", "chart directory to write requirements.yaml and values.yaml into"},
	{"repository", "VONGFORM_DEFAULT_REPOSITORY", "r", "", "Helm repository URL set on every dependency"},
	{"store", "VONGFORM_STORE", "", StoreConsul, "state store backend: consul, nats, sqlite or memory"},
	{"prefix", "VONGFORM_PREFIX", "", "umbrella", "store key prefix holding service versions"},
	{"values-prefix", "VONGFORM_VALUES_PREFIX", "", "umbrella-values", "store key prefix holding values overrides (empty disables)"},
	{"chart-name", "VONGFORM_CHART_NAME", "", "chart", "name used in a newly scaffolded Chart.yaml"},
	{"chart-version", "VONGFORM_CHART_VERSION", "", "1.0.0", "version used in a newly scaffolded Chart.yaml"},
	{"store-timeout", "VONGFORM_STORE_TIMEOUT", "", 10 * time.Second, "timeout for each state store call"},
	{"consul-addr", "VONGFORM_CONSUL_ADDR", "", "", "Consul agent address (defaults to CONSUL_HTTP_ADDR)"},
	{"nats-url", "VONGFORM_NATS_URL", "", "nats://127.0.0.1:4222", "NATS server URL"},
	{"nats-bucket", "VONGFORM_NATS_BUCKET", "", "vongform", "NATS JetStream KV bucket"},
	{"sqlite-path", "VONGFORM_SQLITE_PATH", "", "vongform.db", "SQLite database file"},
	{"diff", "", "", false, "log a unified diff of the manifests against the committed files"},
	{"dry-run", "", "", false, "render and diff without writing the store or the output directory"},
	{"dependency-update", "", "", false, "run helm dependency update after committing"},
	{"log-level", "LOG_LEVEL", "", "info", "log level: debug, info, warn or error"},
	{"metrics-textfile", "VONGFORM_METRICS_TEXTFILE", "", "", "write Prometheus metrics to this node_exporter textfile"},
	{"otel-enabled", "OTEL_ENABLED", "", false, ""},
	{"otel-exporter", "OTEL_EXPORTER", "", telemetry.ExporterOTLP, ""},
}

// RegisterFlags defines every configuration flag on flags. Settings without
// a usage string are environment-only.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, s := range settings {
		if s.usage == "" {
			continue
		}
		switch def := s.def.(type) {
		case string:
			flags.StringP(s.key, s.short, def, s.usage)
		case bool:
			flags.BoolP(s.key, s.short, def, s.usage)
		case time.Duration:
			flags.DurationP(s.key, s.short, def, s.usage)
		}
	}
}

// Load resolves the configuration. envFile is loaded into the environment
// first without overriding variables that are already set; a missing file
// is not an error. Invalid values are reported as InvalidConfig errors.
func Load(flags *pflag.FlagSet, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, domain.NewInvalidConfigError(envFile, fmt.Errorf("loading env file: %w", err))
		}
	}

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if s.env != "" {
			if err := v.BindEnv(s.key, s.env); err != nil {
				return Config{}, fmt.Errorf("binding %s: %w", s.env, err)
			}
		}
		if flags != nil {
			if f := flags.Lookup(s.key); f != nil {
				if err := v.BindPFlag(s.key, f); err != nil {
					return Config{}, fmt.Errorf("binding --%s: %w", s.key, err)
				}
			}
		}
	}

	timeout, err := time.ParseDuration(v.GetString("store-timeout"))
	if err != nil {
		return Config{}, domain.NewInvalidConfigError("store-timeout", err)
	}

	cfg := Config{
		OutputDir:       v.GetString("output"),
		Repository:      v.GetString("repository"),
		Store:           strings.ToLower(v.GetString("store")),
		Prefix:          strings.Trim(v.GetString("prefix"), "/"),
		ValuesPrefix:    strings.Trim(v.GetString("values-prefix"), "/"),
		ChartName:       v.GetString("chart-name"),
		ChartVersion:    v.GetString("chart-version"),
		StoreTimeout:    timeout,
		ConsulAddr:      v.GetString("consul-addr"),
		NATSURL:         v.GetString("nats-url"),
		NATSBucket:      v.GetString("nats-bucket"),
		SQLitePath:      v.GetString("sqlite-path"),
		ShowDiff:        v.GetBool("diff"),
		DryRun:          v.GetBool("dry-run"),
		UpdateDeps:      v.GetBool("dependency-update"),
		LogLevel:        v.GetString("log-level"),
		MetricsTextfile: v.GetString("metrics-textfile"),
		OTelEnabled:     v.GetString("otel-enabled") == "true",
		OTelExporter:    strings.ToLower(v.GetString("otel-exporter")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up with a default.
func (c Config) Validate() error {
	switch c.Store {
	case StoreConsul, StoreNATS, StoreSQLite, StoreMemory:
	default:
		return domain.NewInvalidConfigError("store", fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Prefix == "" {
		return domain.NewInvalidConfigError("prefix", errors.New("must not be empty"))
	}
	if c.ValuesPrefix != "" && (c.ValuesPrefix == c.Prefix || strings.HasPrefix(c.ValuesPrefix, c.Prefix+"/")) {
		return domain.NewInvalidConfigError("values-prefix", fmt.Errorf("%q must not lie under prefix %q", c.ValuesPrefix, c.Prefix))
	}
	if c.OutputDir == "" {
		return domain.NewInvalidConfigError("output", errors.New("must not be empty"))
	}
	if c.StoreTimeout <= 0 {
		return domain.NewInvalidConfigError("store-timeout", fmt.Errorf("must be positive, got %s", c.StoreTimeout))
	}
	if !logger.ValidLevel(c.LogLevel) {
		return domain.NewInvalidConfigError("log-level", fmt.Errorf("unknown level %q", c.LogLevel))
	}
	switch c.OTelExporter {
	case telemetry.ExporterOTLP, telemetry.ExporterStdout:
	default:
		return domain.NewInvalidConfigError("otel-exporter", fmt.Errorf("unknown exporter %q", c.OTelExporter))
	}
	if c.Store == StoreNATS && c.NATSBucket == "" {
		return domain.NewInvalidConfigError("nats-bucket", errors.New("must not be empty"))
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		return domain.NewInvalidConfigError("sqlite-path", errors.New("must not be empty"))
	}
	return nil
}
