// Package config loads the JSON configuration of hedera-agentd, applies
// defaults relative to the configuration file and resolves secrets through
// environment variables (optionally seeded from a .env file).
package config
