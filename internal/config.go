package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeGoogle   = "google"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverVault  = "vault"
	StoreDriverNeo4j  = "neo4j"
	StoreDriverMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Auth   AuthConfig        `yaml:"auth"`
	GenAI  GenAIConfig       `yaml:"genai"`
	Speech SpeechConfig      `yaml:"speech"`
	MCP    MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.GenAI.Validate(); err != nil {
		return fmt.Errorf("genai: %w", err)
	}
	return c.MCP.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle is the minimum spacing of notes.changed hints per owner.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Vault  VaultConfig  `yaml:"vault"`
	Neo4j  Neo4jConfig  `yaml:"neo4j"`
}

// Validate validates the driver and the section it uses.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = StoreDriverSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(StoreDriverSQLite, StoreDriverVault, StoreDriverNeo4j, StoreDriverMemory)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case StoreDriverSQLite:
		return c.SQLite.Validate()
	case StoreDriverVault:
		return c.Vault.Validate()
	case StoreDriverNeo4j:
		return c.Neo4j.Validate()
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// VaultConfig holds the root of the file-backed note vault.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// Neo4jConfig holds the graph database connection.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Validate validates the Neo4j configuration.
func (c *Neo4jConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URI, validation.Required),
		validation.Field(&c.Username, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how requests are mapped onto owners:
//   - "disabled" (default): every request is the local owner.
//   - "token": static Bearer tokens from Tokens.
//   - "google": Bearer values are Google OAuth2 access tokens.
type AuthConfig struct {
	Mode string `yaml:"mode"`
	// Tokens maps a bearer token onto an owner.
	Tokens []TokenConfig `yaml:"tokens"`
	// LocalOwner is the owner used in disabled mode and by the MCP server.
	LocalOwner string       `yaml:"local_owner"`
	Google     GoogleConfig `yaml:"google"`
}

// TokenConfig is one static token entry.
type TokenConfig struct {
	Token       string `yaml:"token"`
	OwnerID     string `yaml:"owner_id"`
	DisplayName string `yaml:"display_name"`
}

// Validate validates a token entry.
func (c TokenConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.OwnerID, validation.Required),
	)
}

// GoogleConfig configures google mode. ClientIDs are the OAuth client IDs
// whose access tokens are accepted.
type GoogleConfig struct {
	ClientIDs []string      `yaml:"client_ids"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeGoogle)),
		validation.Field(&c.LocalOwner, validation.Required),
		validation.Field(&c.Tokens),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && len(c.Tokens) == 0 {
		return fmt.Errorf("mode is %q but no tokens are configured", AuthModeToken)
	}
	if c.Mode == AuthModeGoogle {
		if err := validation.Validate(c.Google.ClientIDs, validation.Required, validation.Each(validation.Required)); err != nil {
			return fmt.Errorf("mode is %q but client ids are invalid: %w", AuthModeGoogle, err)
		}
	}
	return nil
}

// GenAIConfig configures the text generation backend. An empty APIKey
// disables title generation and translation.
type GenAIConfig struct {
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	URL               string `yaml:"url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Validate validates the generation configuration.
func (c *GenAIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
	)
}

// SpeechConfig configures the speech daemon. An empty Socket disables voice
// capture.
type SpeechConfig struct {
	Socket string        `yaml:"socket"`
	Locale string        `yaml:"locale"`
	Drain  time.Duration `yaml:"drain"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	DisplayName string `yaml:"display_name"`
}

// Validate validates the MCP configuration.
func (c *MCPConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DisplayName, validation.Required),
	); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			EventThrottle: 2 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			SQLite: SQLiteConfig{
				Path: "./voxnote.db",
			},
			Vault: VaultConfig{
				Path:  "./vault",
				Watch: true,
			},
			Neo4j: Neo4jConfig{
				Database: "neo4j",
			},
		},
		Auth: AuthConfig{
			Mode:       AuthModeDisabled,
			LocalOwner: "local",
			Google: GoogleConfig{
				CacheSize: 1024,
				CacheTTL:  5 * time.Minute,
			},
		},
		GenAI: GenAIConfig{
			RequestsPerMinute: 60,
		},
		Speech: SpeechConfig{
			Locale: "en-US",
		},
		MCP: MCPConfig{
			DisplayName: "Local",
		},
	}
}
