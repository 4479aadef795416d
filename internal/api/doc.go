// Package api exposes the hedera-agentd REST interface: synchronous chat,
// session history, wallet receipts for returnBytes transactions, the tool
// catalogue and the asynchronous task queue.
package api
