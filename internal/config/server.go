package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegisgate/aegis/internal/logging"
)

// ServerConfig is the main configuration for the Aegis server.
type ServerConfig struct {
	Server   ServerSettings   `yaml:"server" json:"server"`
	Security SecuritySettings `yaml:"security" json:"security"`
	Auth     AuthSettings     `yaml:"auth" json:"auth"`
	Logging  logging.Config   `yaml:"logging" json:"logging"`
}

// ServerSettings contains the HTTP listener settings.
type ServerSettings struct {
	Listen         string     `yaml:"listen" json:"listen"`
	TLS            *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`
	ReadTimeout    Duration   `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   Duration   `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    Duration   `yaml:"idle_timeout" json:"idle_timeout"`
	GracefulPeriod Duration   `yaml:"graceful_period" json:"graceful_period"`
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// SecuritySettings locates the persisted security document.
type SecuritySettings struct {
	// StorePath is where the versioned security document lives. The file is
	// created on first edit when it does not exist.
	StorePath string `yaml:"store_path" json:"store_path"`
	// BootstrapPath optionally points at a security document used to seed an
	// empty store on startup.
	BootstrapPath string `yaml:"bootstrap_path,omitempty" json:"bootstrap_path,omitempty"`
}

// AuthSettings tunes the authentication chain.
type AuthSettings struct {
	// Realm is advertised in WWW-Authenticate challenges.
	Realm string `yaml:"realm" json:"realm"`
	// AttemptTimeout bounds each scheme's authentication attempt.
	AttemptTimeout Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
}

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultServerConfig returns a server configuration with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Server: ServerSettings{
			Listen:         ":8080",
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(30 * time.Second),
			IdleTimeout:    Duration(60 * time.Second),
			GracefulPeriod: Duration(30 * time.Second),
		},
		Security: SecuritySettings{
			StorePath: "security.json",
		},
		Auth: AuthSettings{
			Realm:          "aegis",
			AttemptTimeout: Duration(10 * time.Second),
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address must be configured")
	}
	if c.Security.StorePath == "" {
		return fmt.Errorf("security store path must be configured")
	}
	if c.Server.TLS != nil && c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS requires both cert_file and key_file")
		}
	}
	if c.Auth.AttemptTimeout < 0 {
		return fmt.Errorf("auth attempt_timeout must not be negative")
	}
	return nil
}
