// Package auth guards the HTTP API with static bearer tokens. Tokens prefixed
// with "ro:" in the configuration only grant read access.
package auth
