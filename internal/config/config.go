package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vango-dev/getserve/internal/errors"
	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/resolve"
	"github.com/vango-dev/getserve/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "getserve.json"

	// DefaultPort is the default server port.
	DefaultPort = server.DefaultPort

	// DefaultRoot is the default directory files are served from.
	DefaultRoot = "public"

	// DefaultIndex is the file served for "/".
	DefaultIndex = "index.html"

	// DefaultShutdownTimeout is how long a stopping server drains handlers.
	DefaultShutdownTimeout = "30s"
)

// Config represents the complete getserve.json configuration.
type Config struct {
	// Host is the bind host. Empty binds every local address.
	Host string `json:"host,omitempty"`

	// Port is the bind port.
	Port int `json:"port,omitempty"`

	// Backlog is the listen queue depth.
	Backlog int `json:"backlog,omitempty"`

	// Capacity is the number of connections handled at once.
	Capacity int `json:"capacity,omitempty"`

	// FamilyOrder lists address families in resolution order,
	// e.g. ["ipv6", "ipv4"].
	FamilyOrder []string `json:"familyOrder,omitempty"`

	// Root is the directory files are served from, relative to the
	// config file. Ignored when S3.Bucket is set.
	Root string `json:"root,omitempty"`

	// Index is the file served for "/". Empty uses index.html.
	Index string `json:"index,omitempty"`

	// KeepAlive serves multiple requests per connection. Default: true.
	KeepAlive *bool `json:"keepAlive,omitempty"`

	// MaxRequestBytes bounds the bytes buffered for one request.
	MaxRequestBytes int `json:"maxRequestBytes,omitempty"`

	// MaxFileSize bounds the size of a served file. 0 means no limit.
	MaxFileSize int64 `json:"maxFileSize,omitempty"`

	// IdleTimeout bounds each wait for client bytes (e.g., "30s").
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// WriteTimeout bounds writing one response.
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds draining on shutdown.
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`

	// Admin configures the optional admin HTTP server.
	Admin AdminConfig `json:"admin,omitempty"`

	// S3 configures serving from a bucket instead of Root.
	S3 S3Config `json:"s3,omitempty"`

	// Log configures the process logger.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// AdminConfig contains admin server settings.
type AdminConfig struct {
	// Address enables the admin server when set (e.g., "127.0.0.1:9090").
	Address string `json:"address,omitempty"`

	// StatsInterval is the /stats/ws push interval (e.g., "1s").
	StatsInterval string `json:"statsInterval,omitempty"`
}

// S3Config contains bucket settings.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `json:"level,omitempty"`

	// Format is text or json. Default: text.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from getserve.json in the given directory.
// A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	cfg, err := LoadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			cfg = New()
			cfg.configPath = path
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.New("E120").
			WithDetail("Could not read " + path).
			Wrap(err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, syntaxError(path, data, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// syntaxError converts a decode error into an E120 pointing at the
// offending line when the offset is known.
func syntaxError(path string, data []byte, err error) error {
	ce := errors.New("E120").Wrap(err)

	var offset int64 = -1
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &se):
		offset = se.Offset
	case stderrors.As(err, &te):
		offset = te.Offset
		ce.WithSuggestion(fmt.Sprintf("%q must be a %s.", te.Field, te.Type))
	}
	if offset >= 0 {
		line, col := lineColumn(data, offset)
		ce.WithLocation(path, line, col)
	}
	return ce
}

// lineColumn converts a byte offset into a 1-based line and column.
func lineColumn(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line = 1
	col = 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	// Offsets point just past the offending byte.
	if col > 1 {
		col--
	}
	return line, col
}

// Save writes the configuration to getserve.json.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("E121").WithDetail("No config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	c.configPath = path
	return nil
}

// Path returns the path to the config file.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Backlog == 0 {
		c.Backlog = resolve.DefaultBacklog
	}
	if c.Capacity == 0 {
		c.Capacity = admission.DefaultCapacity
	}
	if len(c.FamilyOrder) == 0 {
		c.FamilyOrder = resolve.ServerOrder.Strings()
	}
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if c.KeepAlive == nil {
		keepAlive := true
		c.KeepAlive = &keepAlive
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = server.DefaultMaxRequestBytes
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("Port %d is outside 0-65535.", c.Port))
	}
	if c.Capacity < 1 {
		return errors.New("E123").
			WithDetail(fmt.Sprintf("Capacity %d admits no connections.", c.Capacity)).
			WithSuggestion("Set capacity to 1 or more.")
	}
	if c.Backlog < 1 {
		return errors.New("E123").
			WithDetail(fmt.Sprintf("Backlog %d cannot queue connections.", c.Backlog))
	}
	if _, err := resolve.ParseOrder(c.FamilyOrder); err != nil {
		return errors.New("E101").Wrap(err).
			WithExample(`"familyOrder": ["ipv6", "ipv4"]`)
	}
	for name, value := range map[string]string{
		"idleTimeout":         c.IdleTimeout,
		"writeTimeout":        c.WriteTimeout,
		"shutdownTimeout":     c.ShutdownTimeout,
		"admin.statsInterval": c.Admin.StatsInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			return errors.New("E126").
				WithDetail(fmt.Sprintf("%s: %q is not a duration.", name, value)).
				Wrap(err)
		}
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		return errors.New("E125").
			WithSuggestion("Set s3.region, e.g. \"us-east-1\".")
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return errors.New("E121").Wrap(err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E121").
			WithDetail(fmt.Sprintf("log.format %q must be text or json.", c.Log.Format))
	}
	return nil
}

// parseDuration parses a Go duration string. Empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// ParseLogLevel parses a level name.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// RootPath returns the absolute path of the serving root.
func (c *Config) RootPath() string {
	if filepath.IsAbs(c.Root) {
		return c.Root
	}
	return filepath.Join(c.Dir(), c.Root)
}

// UsesS3 reports whether files are served from a bucket.
func (c *Config) UsesS3() bool {
	return c.S3.Bucket != ""
}

// StatsInterval returns the admin stats push interval, 0 for the default.
func (c *Config) StatsInterval() time.Duration {
	d, _ := parseDuration(c.Admin.StatsInterval)
	return d
}

// ServerConfig converts the file configuration into a server.Config.
// Handler, middleware and hooks are left for the caller to set.
func (c *Config) ServerConfig() (*server.Config, error) {
	order, err := resolve.ParseOrder(c.FamilyOrder)
	if err != nil {
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := server.DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Backlog = c.Backlog
	cfg.Capacity = c.Capacity
	cfg.FamilyOrder = order
	cfg.MaxRequestBytes = c.MaxRequestBytes
	cfg.CloseAfterResponse = c.KeepAlive != nil && !*c.KeepAlive

	// Validate has already checked these.
	cfg.IdleTimeout, _ = parseDuration(c.IdleTimeout)
	cfg.WriteTimeout, _ = parseDuration(c.WriteTimeout)
	if d, _ := parseDuration(c.ShutdownTimeout); d > 0 {
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// getserve.json, or returns E141 if none is found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("No getserve.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'getserve init' to write one with the defaults")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads getserve.json from the working directory or the
// nearest parent that has one. Without any, the defaults apply relative to
// the working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return Load(wd)
	}

	return Load(root)
}
