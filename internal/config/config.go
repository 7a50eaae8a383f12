package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"sentinel/domain/core"
	"sentinel/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	Fleet     FleetConfig
	Consensus ConsensusConfig
	Governor  GovernorConfig
	Notify    NotifyConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

// DatabaseConfig holds the snapshot store connection settings. An empty URL
// switches persistence to the in-memory adapter (development mode).
type DatabaseConfig struct {
	URL string
}

// FleetConfig holds scheduler and run supervisor settings
type FleetConfig struct {
	TickCadence      time.Duration
	MaxConcurrent    int
	RunTimeout       time.Duration
	FailureThreshold int
	// QuarantineCooldown enables automatic quarantine clearing once this
	// much time has passed since the quarantine timestamp. Zero means
	// manual-only clearing, which is the default policy.
	QuarantineCooldown time.Duration
	// Reliability decay
	DecayHalfLife     time.Duration
	DecayBaseline     float64
	DemotionThreshold float64
	// Autostart activates every registered detector at boot. Quarantined
	// detectors stay quarantined either way.
	Autostart bool
}

// ConsensusConfig holds council and escalation settings
type ConsensusConfig struct {
	VoteTimeout time.Duration
	// RouteFloor is the minimum severity for a finding to be sent to the
	// council at all; EscalationFloor is the severity leg of the
	// triple-confirmation rule.
	RouteFloor      core.Severity
	EscalationFloor core.Severity
	// Council backends: OpenAI-compatible chat endpoints.
	OpenAIKey     string
	OpenAIBaseURL string
	CouncilModels []string
	Temperature   float64
	// ConfidenceBoost is added to a finding's confidence when the council
	// votes ACT with at least BoostThreshold confidence.
	ConfidenceBoost float64
	BoostThreshold  float64
	// PriceAPIURL feeds the TA voter; empty falls back to the synthetic
	// price source (development mode).
	PriceAPIURL string
	PricePoints int
}

// GovernorConfig holds the fleet circuit breaker settings
type GovernorConfig struct {
	RiskLimit     float64
	FailureWeight float64
}

// NotifyConfig holds alert delivery settings
type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// ServerConfig holds the API and ops listener settings
type ServerConfig struct {
	Port    string
	OpsPort string
	GinMode string
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	FilePath   string
	Level      string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	DevMode    bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Fleet: FleetConfig{
			TickCadence:        envDuration("SCHEDULER_TICK", 5*time.Second),
			MaxConcurrent:      envInt("MAX_CONCURRENT_DETECTORS", 8),
			RunTimeout:         envDuration("DETECTOR_RUN_TIMEOUT", 2*time.Minute),
			FailureThreshold:   envInt("FAILURE_THRESHOLD", 3),
			QuarantineCooldown: envDuration("QUARANTINE_COOLDOWN", 0),
			DecayHalfLife:      envDuration("DECAY_HALF_LIFE", 48*time.Hour),
			DecayBaseline:      envFloat("DECAY_BASELINE", 0.05),
			DemotionThreshold:  envFloat("DEMOTION_THRESHOLD", 0.7),
			Autostart:          envBool("FLEET_AUTOSTART", true),
		},
		Consensus: ConsensusConfig{
			VoteTimeout:     envDuration("VOTE_TIMEOUT", 20*time.Second),
			RouteFloor:      core.ParseSeverity(envString("ROUTE_SEVERITY_FLOOR", "high")),
			EscalationFloor: core.ParseSeverity(envString("ESCALATION_SEVERITY_FLOOR", "critical")),
			OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
			CouncilModels:   envList("COUNCIL_MODELS", []string{"gpt-4o-mini", "gpt-4o", "o3-mini"}),
			Temperature:     envFloat("COUNCIL_TEMPERATURE", 0.2),
			ConfidenceBoost: envFloat("CONFIDENCE_BOOST", 0.10),
			BoostThreshold:  envFloat("BOOST_THRESHOLD", 0.60),
			PriceAPIURL:     os.Getenv("PRICE_API_URL"),
			PricePoints:     envInt("PRICE_SERIES_POINTS", 48),
		},
		Governor: GovernorConfig{
			RiskLimit:     envFloat("GOVERNOR_RISK_LIMIT", 20.0),
			FailureWeight: envFloat("GOVERNOR_FAILURE_WEIGHT", 0.5),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
			Timeout:    envDuration("ALERT_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Port:    envString("PORT", "8080"),
			OpsPort: envString("OPS_PORT", "9090"),
			GinMode: envString("GIN_MODE", "release"),
		},
		Logging: LoggingConfig{
			FilePath:   os.Getenv("LOG_FILE"),
			Level:      envString("LOG_LEVEL", "info"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 14),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
			DevMode:    envBool("LOG_DEV_MODE", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Fleet.MaxConcurrent <= 0 {
		return errors.ConfigInvalid("MAX_CONCURRENT_DETECTORS must be positive")
	}
	if c.Fleet.FailureThreshold <= 0 {
		return errors.ConfigInvalid("FAILURE_THRESHOLD must be positive")
	}
	if c.Fleet.DemotionThreshold <= 0 || c.Fleet.DemotionThreshold > 1 {
		return errors.ConfigInvalid("DEMOTION_THRESHOLD must be in (0,1]")
	}
	if c.Governor.RiskLimit <= 0 {
		return errors.ConfigInvalid("GOVERNOR_RISK_LIMIT must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
