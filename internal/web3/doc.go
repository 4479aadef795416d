// Package web3 reads EVM state through the Hedera JSON-RPC relay and exposes
// it to the agent as a query plugin.
package web3
