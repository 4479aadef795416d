// Package redis provides a Redis-backed cache for mirror node responses so
// that several agent instances share token metadata lookups.
package redis
