// Package network resolves Hedera network definitions (consensus nodes,
// mirror node and JSON-RPC relay endpoints) and builds SDK clients for them.
package network
