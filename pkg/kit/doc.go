// Package kit defines the building blocks of the Hedera agent toolkit: tools,
// plugins, the plugin registry and the Toolkit that binds tools to an SDK
// client, a mirror node and an execution mode.
//
// A Toolkit runs in one of two modes. In autonomous mode transactions are
// signed by the client operator and executed immediately. In returnBytes mode
// they are frozen for the acting account and returned as bytes, to be signed
// and submitted by an external wallet.
package kit
