// Package config loads server and client configuration from CLI flags,
// environment variables, and the line-based config file format of
// §6, in that precedence order, matching the teacher's viper-based
// pkg/config package.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SharingConfig is one `[Name]` section of a server config file.
type SharingConfig struct {
	Name     string `mapstructure:"name" validate:"required,max=64,sharingname"`
	Path     string `mapstructure:"path" validate:"required"`
	ReadOnly bool   `mapstructure:"readonly"`
}

// ServerConfig is the fully resolved configuration for esd.
type ServerConfig struct {
	Address       string          `mapstructure:"address"`
	Port          int             `mapstructure:"port" validate:"gte=0,lte=65535"`
	DiscoverPort  int             `mapstructure:"discover_port" validate:"gte=0,lte=65535"`
	Name          string          `mapstructure:"name"`
	Password      string          `mapstructure:"password"`
	Rexec         bool            `mapstructure:"rexec"`
	SSL           bool            `mapstructure:"ssl"`
	SSLCert       string          `mapstructure:"ssl_cert"`
	SSLPrivkey    string          `mapstructure:"ssl_privkey"`
	Trace         bool            `mapstructure:"trace"`
	Verbose       bool            `mapstructure:"verbose"`
	NoColor       bool            `mapstructure:"no_color"`
	LogFormat     string          `mapstructure:"log_format" validate:"oneof=text json"`
	IdleTimeoutS  int             `mapstructure:"idle_timeout" validate:"gte=1"`
	Sharings      []SharingConfig `mapstructure:"-" validate:"required,min=1,dive"`
}

// ClientConfig is the fully resolved configuration for es.
type ClientConfig struct {
	DiscoverPort int    `mapstructure:"discover_port" validate:"gte=0,lte=65535"`
	DiscoverWait int     `mapstructure:"discover_wait" validate:"gte=0"`
	Trace        bool    `mapstructure:"trace"`
	Verbose      bool    `mapstructure:"verbose"`
	NoColor      bool    `mapstructure:"no_color"`
	LogFormat    string  `mapstructure:"log_format" validate:"oneof=text json"`
}

// ServerDefaults returns the built-in defaults per §6, applied at the
// bottom of the precedence stack.
func ServerDefaults() ServerConfig {
	return ServerConfig{
		Address:      "0.0.0.0",
		Port:         12020,
		DiscoverPort: 12021,
		Name:         "",
		Rexec:        false,
		SSL:          false,
		LogFormat:    "text",
		IdleTimeoutS: 300,
	}
}

func ClientDefaults() ClientConfig {
	return ClientConfig{
		DiscoverPort: 12021,
		DiscoverWait: 2,
		LogFormat:    "text",
	}
}

// LoadServer builds a viper instance layering CLI flags over
// EASYSHARE_* environment variables over the parsed config file over
// built-in defaults, decodes it into a ServerConfig and validates it.
func LoadServer(configPath string, flags map[string]any) (*ServerConfig, error) {
	v := viper.New()
	setupEnv(v)

	defaults := ServerDefaults()
	setDefault(v, "address", defaults.Address)
	setDefault(v, "port", defaults.Port)
	setDefault(v, "discover_port", defaults.DiscoverPort)
	setDefault(v, "name", defaults.Name)
	setDefault(v, "rexec", defaults.Rexec)
	setDefault(v, "ssl", defaults.SSL)
	setDefault(v, "log_format", defaults.LogFormat)
	setDefault(v, "idle_timeout", defaults.IdleTimeoutS)

	var sharings []SharingConfig
	if configPath != "" {
		file, err := parseFile(configPath)
		if err != nil {
			return nil, err
		}
		// MergeConfigMap lands in viper's "config" layer, which sits
		// below AutomaticEnv in viper's precedence stack — unlike Set,
		// which writes the top-priority override layer and would let a
		// file value beat an env var regardless of load order.
		if err := v.MergeConfigMap(file.global); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
		sharings = file.sharings
	}

	for k, val := range flags {
		v.Set(k, val)
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}
	cfg.Sharings = sharings

	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadClient mirrors LoadServer for the client binary; there is no
// sharing-section concept on the client side.
func LoadClient(configPath string, flags map[string]any) (*ClientConfig, error) {
	v := viper.New()
	setupEnv(v)

	defaults := ClientDefaults()
	setDefault(v, "discover_port", defaults.DiscoverPort)
	setDefault(v, "discover_wait", defaults.DiscoverWait)
	setDefault(v, "log_format", defaults.LogFormat)

	if configPath != "" {
		file, err := parseFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(file.global); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	for k, val := range flags {
		v.Set(k, val)
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode client config: %w", err)
	}
	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setupEnv(v *viper.Viper) {
	v.SetEnvPrefix("EASYSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func setDefault(v *viper.Viper, key string, val any) {
	v.SetDefault(key, val)
}
