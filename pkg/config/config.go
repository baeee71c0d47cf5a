package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// BandConfig is one row of the band table as written in the config file
type BandConfig struct {
	Code         int    `yaml:"code"`
	Switch       string `yaml:"switch"`
	TuneSeconds  int    `yaml:"tune_seconds"`
	TunerCommand string `yaml:"tuner_command"`
	Label        string `yaml:"label"`
}

// Config represents the antenna manager configuration
type Config struct {
	Station struct {
		Callsign string `yaml:"callsign"`
	} `yaml:"station"`

	Telemetry struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		Handshake      string        `yaml:"handshake"`
		DialTimeout    time.Duration `yaml:"dial_timeout"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	} `yaml:"telemetry"`

	Switch struct {
		BaseURL     string        `yaml:"base_url"`
		MaxAttempts int           `yaml:"max_attempts"`
		RetryDelay  time.Duration `yaml:"retry_delay"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"switch"`

	Tuner struct {
		Device      string `yaml:"device"`
		BaudRate    int    `yaml:"baud_rate"`
		InitCommand string `yaml:"init_command"`
	} `yaml:"tuner"`

	Radio struct {
		Device     string        `yaml:"device"`
		BaudRate   int           `yaml:"baud_rate"`
		AutoTune   *bool         `yaml:"auto_tune"`
		TuneBegin  string        `yaml:"tune_begin"`
		TuneEnd    string        `yaml:"tune_end"`
		TuneLead   time.Duration `yaml:"tune_lead"`
		TuneSettle time.Duration `yaml:"tune_settle"`
	} `yaml:"radio"`

	Bands []BandConfig `yaml:"bands"`

	Web struct {
		Enabled       *bool         `yaml:"enabled"`
		Port          int           `yaml:"port"`
		BindAddress   string        `yaml:"bind_address"`
		StatusRefresh time.Duration `yaml:"status_refresh"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxEvents    int    `yaml:"max_events"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// DefaultHandshake subscribes an N3FJP API connection to entry-window updates
const DefaultHandshake = "<CMD><READ><CONTROL>TXTENTRYFREQUENCY</CONTROL></CMD>\n" +
	"<CMD><READRESPONSE><CONTROL>TXTENTRYFREQUENCY</CONTROL></CMD>\n"

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	config := &Config{}
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills in every unset field
func (c *Config) ApplyDefaults() {
	if c.Telemetry.Host == "" {
		c.Telemetry.Host = "localhost"
	}
	if c.Telemetry.Port == 0 {
		c.Telemetry.Port = 1100
	}
	if c.Telemetry.Handshake == "" {
		c.Telemetry.Handshake = DefaultHandshake
	}
	if c.Telemetry.DialTimeout == 0 {
		c.Telemetry.DialTimeout = 10 * time.Second
	}
	if c.Telemetry.ReconnectDelay == 0 {
		c.Telemetry.ReconnectDelay = 5 * time.Second
	}
	if c.Switch.BaseURL == "" {
		c.Switch.BaseURL = "http://192.168.1.179/"
	}
	if c.Switch.MaxAttempts == 0 {
		c.Switch.MaxAttempts = 3
	}
	if c.Switch.RetryDelay == 0 {
		c.Switch.RetryDelay = 2 * time.Second
	}
	if c.Switch.Timeout == 0 {
		c.Switch.Timeout = 5 * time.Second
	}
	if c.Tuner.BaudRate == 0 {
		c.Tuner.BaudRate = 38400
	}
	if c.Tuner.InitCommand == "" {
		c.Tuner.InitCommand = "AN1;MDM;"
	}
	if c.Radio.BaudRate == 0 {
		c.Radio.BaudRate = 38400
	}
	if c.Radio.AutoTune == nil {
		enabled := true
		c.Radio.AutoTune = &enabled
	}
	if c.Radio.TuneBegin == "" {
		c.Radio.TuneBegin = "SWH16;" // TUNE long press
	}
	if c.Radio.TuneEnd == "" {
		c.Radio.TuneEnd = "SWT16;" // TUNE short press
	}
	if c.Radio.TuneLead == 0 {
		c.Radio.TuneLead = time.Second
	}
	if c.Radio.TuneSettle == 0 {
		c.Radio.TuneSettle = 200 * time.Millisecond
	}
	if c.Web.Enabled == nil {
		enabled := true
		c.Web.Enabled = &enabled
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "127.0.0.1"
	}
	if c.Web.StatusRefresh == 0 {
		c.Web.StatusRefresh = time.Second
	}
	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/n3fjpd.sock"
	}
	if c.Storage.MaxEvents == 0 {
		c.Storage.MaxEvents = 5000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telemetry.Port <= 0 || c.Telemetry.Port > 65535 {
		return fmt.Errorf("telemetry port %d out of range", c.Telemetry.Port)
	}
	u, err := url.Parse(c.Switch.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid switch base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("switch base url must be http or https, got %q", c.Switch.BaseURL)
	}
	if !strings.HasSuffix(c.Switch.BaseURL, "/") {
		return fmt.Errorf("switch base url must end with '/'")
	}
	if c.Switch.MaxAttempts < 1 {
		return fmt.Errorf("switch max_attempts must be at least 1")
	}
	if c.Tuner.Device == "" {
		return fmt.Errorf("tuner device is required")
	}
	if c.AutoTuneEnabled() && c.Radio.Device == "" {
		return fmt.Errorf("radio device is required when auto_tune is enabled")
	}

	seen := make(map[int]bool, len(c.Bands))
	for _, b := range c.Bands {
		if seen[b.Code] {
			return fmt.Errorf("duplicate band code %d", b.Code)
		}
		seen[b.Code] = true
		if b.Switch == "" {
			return fmt.Errorf("band %d has no switch position", b.Code)
		}
		if b.TuneSeconds < 0 {
			return fmt.Errorf("band %d has negative tune_seconds", b.Code)
		}
	}
	return nil
}

// AutoTuneEnabled reports whether the radio should be keyed for tune cycles
func (c *Config) AutoTuneEnabled() bool {
	return c.Radio.AutoTune != nil && *c.Radio.AutoTune
}

// WebEnabled reports whether the status web server should run
func (c *Config) WebEnabled() bool {
	return c.Web.Enabled != nil && *c.Web.Enabled
}

// TelemetryAddress returns host:port of the logging program's API
func (c *Config) TelemetryAddress() string {
	return fmt.Sprintf("%s:%d", c.Telemetry.Host, c.Telemetry.Port)
}
