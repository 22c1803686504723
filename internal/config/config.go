// Package config provides configuration management for the DMX to OSC bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrMissingHost is returned by Validate when no OSC destination is configured.
var ErrMissingHost = errors.New("OSC_HOST environment variable not set")

// Config holds all configuration values for the bridge.
type Config struct {
	Env string

	// OSC destination
	OSCHost   string
	OSCPort   int
	OSCBundle bool // one bundle per frame instead of one datagram per channel

	// WebSocket listener
	WSPort int

	// Address prefix, without leading or trailing slashes
	DMXUniverse string

	LogLevel string

	// CORS configuration for the status endpoint
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Env: getEnv("ENV", "production"),

		OSCHost:   getEnv("OSC_HOST", ""),
		OSCPort:   getEnvInt("OSC_PORT", 7770),
		OSCBundle: getEnvBool("OSC_BUNDLE", false),

		WSPort: getEnvInt("WS_PORT", 8080),

		DMXUniverse: strings.Trim(getEnv("DMX_UNIVERSE", "dmx/universe/0"), "/"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
	}
}

// Validate checks that the bridge can start with this configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OSCHost) == "" {
		return ErrMissingHost
	}
	if c.OSCPort < 1 || c.OSCPort > 65535 {
		return fmt.Errorf("invalid OSC_PORT %d: must be between 1 and 65535", c.OSCPort)
	}
	if c.WSPort < 1 || c.WSPort > 65535 {
		return fmt.Errorf("invalid WS_PORT %d: must be between 1 and 65535", c.WSPort)
	}
	if c.DMXUniverse == "" {
		return errors.New("DMX_UNIVERSE must not be empty")
	}
	return nil
}

// ListenAddr returns the TCP address the WebSocket listener binds to.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.WSPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
// A value that does not parse is passed through as -1 so Validate rejects it.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		intVal, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return -1
		}
		return intVal
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
