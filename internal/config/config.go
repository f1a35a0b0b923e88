// Package config provides environment variable helpers for the CLI
// layer. Flags win over environment values; these helpers only supply
// the fallbacks.
package config

import (
	"os"
	"strconv"
)

// EnvPrefix is prepended to all vapormail environment variables.
const EnvPrefix = "VAPORMAIL_"

// GetEnvString returns the value of EnvPrefix+key or the default.
func GetEnvString(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of EnvPrefix+key or the default.
// Unparseable values fall back to the default.
func GetEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetEnvInt returns the integer value of EnvPrefix+key or the default.
// Unparseable values fall back to the default.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
