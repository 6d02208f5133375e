// Package config loads client settings from a YAML file and CHATSYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/history"
	"github.com/eoncord/chatsync-go/chatsync/typing"
)

// Config is the client configuration.
type Config struct {
	APIURL   string `yaml:"api_url" validate:"required,url"`
	WSURL    string `yaml:"ws_url" validate:"required,url"`
	Token    string `yaml:"token"`
	UserID   string `yaml:"user_id"`
	Username string `yaml:"username"`

	PageSize             int       `yaml:"page_size" validate:"gte=1,lte=200"`
	TypingTTL            Duration  `yaml:"typing_ttl" validate:"gt=0"`
	TypingThrottle       Duration  `yaml:"typing_throttle" validate:"gt=0"`
	ReconnectDelay       Duration  `yaml:"reconnect_delay" validate:"gt=0"`
	MaxReconnectAttempts int       `yaml:"max_reconnect_attempts" validate:"gte=0"`
	MaxContentLength     int       `yaml:"max_content_length" validate:"gte=1"`
	HandshakeTimeout     Duration  `yaml:"handshake_timeout" validate:"gte=0"`
	WriteTimeout         Duration  `yaml:"write_timeout" validate:"gte=0"`
	MaxUploadSize        SizeBytes `yaml:"max_upload_size" validate:"gt=0"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used for unset keys. It has no URLs.
func Default() *Config {
	cc := chatsync.DefaultConfig()
	return &Config{
		PageSize:             history.DefaultPageSize,
		TypingTTL:            Duration(typing.DefaultTTL),
		TypingThrottle:       Duration(typing.DefaultThrottle),
		ReconnectDelay:       Duration(cc.ReconnectDelay),
		MaxReconnectAttempts: cc.MaxReconnectAttempts,
		MaxContentLength:     chatsync.DefaultMaxContentLength,
		HandshakeTimeout:     Duration(cc.HandshakeTimeout),
		WriteTimeout:         Duration(cc.WriteTimeout),
		MaxUploadSize:        8 << 20,
		LogLevel:             "info",
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if !(optional && errors.Is(err, os.ErrNotExist)) {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ClientConfig returns the transport configuration.
func (c *Config) ClientConfig() chatsync.Config {
	cc := chatsync.DefaultConfig()
	cc.URL = c.WSURL
	cc.Token = c.Token
	cc.ReconnectDelay = c.ReconnectDelay.Duration()
	cc.MaxReconnectAttempts = c.MaxReconnectAttempts
	cc.HandshakeTimeout = c.HandshakeTimeout.Duration()
	cc.WriteTimeout = c.WriteTimeout.Duration()
	return cc
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Duration is a time.Duration read from strings like "1.5s" or plain
// numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// plain numbers are seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// SizeBytes is a byte count read from strings like "8MB" or plain integers.
type SizeBytes uint64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) MarshalYAML() (any, error) { return s.String(), nil }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}
