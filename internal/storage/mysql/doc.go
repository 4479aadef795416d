// Package mysql persists conversations and wallet receipts, either in MySQL
// with embedded schema migrations or in a local JSON Lines file for
// development.
package mysql
