package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATSYNC_"

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from CHATSYNC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"API_URL":   &c.APIURL,
		"WS_URL":    &c.WSURL,
		"TOKEN":     &c.Token,
		"USER_ID":   &c.UserID,
		"USERNAME":  &c.Username,
		"LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PAGE_SIZE":              &c.PageSize,
		"MAX_RECONNECT_ATTEMPTS": &c.MaxReconnectAttempts,
		"MAX_CONTENT_LENGTH":     &c.MaxContentLength,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	durations := map[string]*Duration{
		"TYPING_TTL":        &c.TypingTTL,
		"TYPING_THROTTLE":   &c.TypingThrottle,
		"RECONNECT_DELAY":   &c.ReconnectDelay,
		"HANDSHAKE_TIMEOUT": &c.HandshakeTimeout,
		"WRITE_TIMEOUT":     &c.WriteTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_SIZE"); ok {
		size, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_SIZE: %w", EnvPrefix, err)
		}
		c.MaxUploadSize = size
	}
	return nil
}
