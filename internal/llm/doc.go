// Package llm contains provider-neutral chat types with tool calling. The
// openai and gemini subpackages adapt them to concrete model APIs.
package llm
