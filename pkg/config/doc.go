// Package config loads application configuration from GUILDBOARD_*
// environment variables with sensible defaults and startup validation.
package config
