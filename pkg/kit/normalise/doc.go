// Package normalise turns tool parameters as an agent sends them into values
// ready for the SDK: it fills in the acting account and its key, converts
// display amounts to base units with decimals fetched from the mirror node,
// resolves EVM addresses and reshapes identifiers and time windows for
// mirror node queries.
package normalise
