// Package agent drives the conversational loop: it hands the user message,
// session history and the toolkit schemas to a language model, executes the
// tool calls the model asks for, and collects transactions prepared for
// wallet signing when running in returnBytes mode.
package agent
