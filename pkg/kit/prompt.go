package kit

import (
	"fmt"
	"strings"
)

// ContextSnippet describes the acting account and mode for a system prompt.
func ContextSnippet(ctx Context) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	switch ctx.EffectiveMode() {
	case ModeReturnBytes:
		b.WriteString("- Mode: returnBytes. Transactions are prepared as unsigned bytes and signed by the user's wallet.\n")
	default:
		b.WriteString("- Mode: autonomous. Transactions are signed and executed by the operator account.\n")
	}
	if ctx.AccountID != "" {
		fmt.Fprintf(&b, "- User account: %s. Use it whenever the user refers to \"my account\" or omits an account.\n", ctx.AccountID)
	} else {
		b.WriteString("- No user account is set; the operator account is the default.\n")
	}
	if ctx.AccountPublicKey != "" {
		fmt.Fprintf(&b, "- User public key: %s\n", ctx.AccountPublicKey)
	}
	return b.String()
}

// ParameterUsageInstructions explains argument conventions shared by all tools.
func ParameterUsageInstructions() string {
	return strings.Join([]string{
		"Parameter usage:",
		"- Only pass parameters the user provided or that a tool requires. Optional parameters have sensible defaults.",
		"- Amounts are in display units (HBAR, or whole tokens); they are converted to base units using the token decimals.",
		"- Account, token, topic and schedule ids use the shard.realm.num form, e.g. 0.0.1234.",
		"- Timestamps are RFC3339, e.g. 2025-01-02T15:04:05Z.",
		"- Set schedulingParams.isScheduled only when the user asks for a scheduled transaction.",
	}, "\n") + "\n"
}

// SystemPrompt assembles the prompt prefix for an agent using ctx. extra
// sections are appended verbatim.
func SystemPrompt(ctx Context, extra ...string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that can interact with the Hedera network using the provided tools.\n\n")
	b.WriteString(ContextSnippet(ctx))
	b.WriteString("\n")
	b.WriteString(ParameterUsageInstructions())
	for _, section := range extra {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(section)
		b.WriteString("\n")
	}
	return b.String()
}
