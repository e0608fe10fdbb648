// Package config provides configuration management for the strangle engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Strategy constant defaults, applied when the corresponding field is unset.
const (
	// defaultTargetDelta is the delta the selector aims both legs at.
	defaultTargetDelta = 0.20
	// defaultThresholdPct is the sold-premium fraction used as loss threshold.
	defaultThresholdPct = 0.40
	// defaultAddFactor scales the threshold for the add-new-option signal.
	defaultAddFactor = 0.5
	// defaultExitLossCap is the fixed currency loss cap (₹) that exits the strategy.
	defaultExitLossCap = 1500
	// defaultLotMultiplier represents the 2 sold lots.
	defaultLotMultiplier = 2
	// defaultHedgeStep is the fixed strike increment for hedge selection.
	defaultHedgeStep = 5
	// defaultRiskFreeRate feeds the theoretical delta fallback.
	defaultRiskFreeRate = 0.07
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	LogFile  string `yaml:"log_file"`  // rotated bot log; empty disables file logging
}

// BrokerConfig defines the Angel One API session settings. The session token
// is issued externally; the engine only consumes it.
type BrokerConfig struct {
	APIEndpoint    string `yaml:"api_endpoint"`    // override for tests; empty uses the default
	SearchEndpoint string `yaml:"search_endpoint"` // override for tests; empty uses the default
	JWTToken       string `yaml:"jwt_token"`
	PrivateKey     string `yaml:"private_key"`
	ClientCode     string `yaml:"client_code"`
	LocalIP        string `yaml:"local_ip"`
	PublicIP       string `yaml:"public_ip"`
	MACAddress     string `yaml:"mac_address"`
	UserType       string `yaml:"user_type"`
	SourceID       string `yaml:"source_id"`
}

// ScheduleConfig defines the evaluation cadence and market hours.
type ScheduleConfig struct {
	CheckInterval string `yaml:"check_interval"`
	Timezone      string `yaml:"timezone"`      // e.g. "Asia/Kolkata"
	TradingStart  string `yaml:"trading_start"` // "HH:MM"
	TradingEnd    string `yaml:"trading_end"`   // "HH:MM"
}

// StrategyConfig defines the strangle parameters and fixed risk constants.
type StrategyConfig struct {
	Underlying        string  `yaml:"underlying"`
	Expiry            string  `yaml:"expiry"`
	TargetDelta       float64 `yaml:"target_delta"`
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
	ThresholdPct      float64 `yaml:"threshold_pct"`
	AddFactor         float64 `yaml:"add_factor"`
	ExitLossCap       float64 `yaml:"exit_loss_cap"`
	LotMultiplier     float64 `yaml:"lot_multiplier"`
	HedgeStep         float64 `yaml:"hedge_step"`
	AllowKindMismatch *bool   `yaml:"allow_kind_mismatch"` // resolver leniency; default true
}

// StorageConfig defines where the trade document and catalog files live.
type StorageConfig struct {
	Path            string `yaml:"path"`
	CandidatesPath  string `yaml:"candidates_path"`
	ScripMasterPath string `yaml:"scripmaster_path"`
	CandleDir       string `yaml:"candle_dir"`
}

// DashboardConfig defines the read-only HTTP surface.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Live mode needs a usable broker session; paper mode runs on the mock.
	if c.Environment.Mode == "live" {
		if c.Broker.JWTToken == "" {
			return fmt.Errorf("broker.jwt_token is required in live mode")
		}
		if c.Broker.PrivateKey == "" {
			return fmt.Errorf("broker.private_key is required in live mode")
		}
	}

	if c.Strategy.Underlying == "" {
		return fmt.Errorf("strategy.underlying is required")
	}
	if c.Strategy.Expiry == "" {
		return fmt.Errorf("strategy.expiry is required")
	}
	if c.Strategy.TargetDelta <= 0 || c.Strategy.TargetDelta >= 1 {
		return fmt.Errorf("strategy.target_delta must be in (0,1)")
	}
	if c.Strategy.ThresholdPct <= 0 || c.Strategy.ThresholdPct >= 1 {
		return fmt.Errorf("strategy.threshold_pct must be in (0,1)")
	}
	if c.Strategy.AddFactor <= 0 || c.Strategy.AddFactor >= 1 {
		return fmt.Errorf("strategy.add_factor must be in (0,1)")
	}
	if c.Strategy.ExitLossCap <= 0 {
		return fmt.Errorf("strategy.exit_loss_cap must be > 0")
	}
	if c.Strategy.LotMultiplier <= 0 {
		return fmt.Errorf("strategy.lot_multiplier must be > 0")
	}
	if c.Strategy.HedgeStep <= 0 {
		return fmt.Errorf("strategy.hedge_step must be > 0")
	}
	if c.Strategy.RiskFreeRate < 0 || c.Strategy.RiskFreeRate > 1 {
		return fmt.Errorf("strategy.risk_free_rate must be in [0,1]")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if _, err := time.ParseDuration(c.Schedule.CheckInterval); err != nil {
		return fmt.Errorf("schedule.check_interval invalid: %w", err)
	}
	loc := c.location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	return nil
}

// normalize fills unset fields with defaults.
func (c *Config) normalize() {
	if c.Strategy.TargetDelta == 0 {
		c.Strategy.TargetDelta = defaultTargetDelta
	}
	if c.Strategy.ThresholdPct == 0 {
		c.Strategy.ThresholdPct = defaultThresholdPct
	}
	if c.Strategy.AddFactor == 0 {
		c.Strategy.AddFactor = defaultAddFactor
	}
	if c.Strategy.ExitLossCap == 0 {
		c.Strategy.ExitLossCap = defaultExitLossCap
	}
	if c.Strategy.LotMultiplier == 0 {
		c.Strategy.LotMultiplier = defaultLotMultiplier
	}
	if c.Strategy.HedgeStep == 0 {
		c.Strategy.HedgeStep = defaultHedgeStep
	}
	if c.Strategy.RiskFreeRate == 0 {
		c.Strategy.RiskFreeRate = defaultRiskFreeRate
	}
	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = "5m"
	}
	if c.Schedule.TradingStart == "" {
		c.Schedule.TradingStart = "09:15"
	}
	if c.Schedule.TradingEnd == "" {
		c.Schedule.TradingEnd = "15:30"
	}
}

// AllowKindMismatch returns the resolver leniency flag, defaulting to true to
// match the historical catalog-matching behavior.
func (c *Config) AllowKindMismatch() bool {
	if c.Strategy.AllowKindMismatch == nil {
		return true
	}
	return *c.Strategy.AllowKindMismatch
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetCheckInterval returns the configured evaluation interval.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.CheckInterval)
	if err != nil {
		return 5 * time.Minute // default
	}
	return d
}

// Location returns the configured market timezone.
func (c *Config) Location() *time.Location {
	return c.location()
}

func (c *Config) location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// IsWithinTradingHours checks if the given time falls within the configured
// trading window on a weekday.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.location()
	today := now.In(loc)

	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 15, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 15, 30, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive start, exclusive end
	return !today.Before(start) && today.Before(end)
}
