// Package mirror is a client for the Hedera mirror node REST API. It covers
// the account, token, topic, transaction, schedule, contract and network
// endpoints used by the agent tools, follows links.next pagination, limits
// the outgoing request rate and caches token metadata.
package mirror
