// Package account provides the core account plugin: HBAR transfers and
// allowances, account lifecycle and schedule signing.
package account

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
	"hedera-agent-kit/pkg/kit/normalise"
)

// PluginName identifies the plugin in a registry.
const PluginName = "core-account-plugin"

// Tool methods.
const (
	TransferHbar            = "transfer_hbar_tool"
	ApproveHbarAllowance    = "approve_hbar_allowance_tool"
	CreateAccount           = "create_account_tool"
	UpdateAccount           = "update_account_tool"
	DeleteAccount           = "delete_account_tool"
	SignScheduleTransaction = "sign_schedule_transaction_tool"
	ScheduleDelete          = "schedule_delete_tool"
)

// Plugin returns the account plugin.
func Plugin() kit.Plugin {
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Transfer HBAR, manage allowances and accounts, sign and delete schedules",
		Capabilities: []kit.Capability{kit.CapabilityTransaction},
		Tools:        Tools,
	}
}

// Tools builds the plugin tools for ctx.
func Tools(_ kit.Context) []kit.Tool {
	return []kit.Tool{
		kit.NewTool(TransferHbar, "Transfer HBAR",
			"Transfer HBAR from one account (the acting account by default) to one or more recipients. "+
				"Amounts are in HBAR. Optionally schedule the transfer.",
			"Failed to transfer HBAR", transferHbar),
		kit.NewTool(ApproveHbarAllowance, "Approve HBAR Allowance",
			"Allow a spender account to transfer HBAR on behalf of the owner (the acting account by default).",
			"Failed to approve hbar allowance", approveHbarAllowance),
		kit.NewTool(CreateAccount, "Create Account",
			"Create a new account. The key defaults to the acting account key, the initial balance is in HBAR.",
			"Failed to create account", createAccount),
		kit.NewTool(UpdateAccount, "Update Account",
			"Update memo, staking and automatic token association settings of an account.",
			"Failed to update account", updateAccount),
		kit.NewTool(DeleteAccount, "Delete Account",
			"Delete an account and transfer its remaining HBAR to another account (the acting account by default).",
			"Failed to delete account", deleteAccount),
		kit.NewTool(SignScheduleTransaction, "Sign Scheduled Transaction",
			"Add the acting account signature to a scheduled transaction.",
			"Failed to sign scheduled transaction", signSchedule),
		kit.NewTool(ScheduleDelete, "Delete Scheduled Transaction",
			"Delete a scheduled transaction. Requires the schedule admin key.",
			"Failed to delete scheduled transaction", deleteSchedule),
	}
}

func transferHbar(ctx context.Context, rt *kit.Runtime, p normalise.TransferHbarParams) (*kit.Result, error) {
	n, err := normalise.NormaliseTransferHbar(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTransferTransaction()
	for _, t := range n.Transfers {
		tx.AddHbarTransfer(t.AccountID, hedera.HbarFromTinybar(t.Tinybars))
	}
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}

	if n.Schedule != nil {
		scheduled, err := hedera.NewScheduleCreateTransaction().SetScheduledTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("schedule transfer: %w", err)
		}
		return dispatch.Handle(ctx, rt, dispatch.ApplySchedule(scheduled, *n.Schedule), dispatch.ScheduledMessage)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return "HBAR successfully transferred.\nTransaction ID: " + raw.TransactionID
	})
}

func approveHbarAllowance(ctx context.Context, rt *kit.Runtime, p normalise.ApproveHbarAllowanceParams) (*kit.Result, error) {
	n, err := normalise.NormaliseApproveHbarAllowance(p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewAccountAllowanceApproveTransaction().
		ApproveHbarAllowance(n.Owner, n.Spender, hedera.HbarFromTinybar(n.Tinybars))
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("HBAR allowance of %s approved for %s.\nTransaction ID: %s",
			normalise.HbarString(n.Tinybars), n.Spender, raw.TransactionID)
	})
}

func createAccount(ctx context.Context, rt *kit.Runtime, p normalise.CreateAccountParams) (*kit.Result, error) {
	n, err := normalise.NormaliseCreateAccount(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewAccountCreateTransaction().
		SetKey(n.Key).
		SetInitialBalance(hedera.HbarFromTinybar(n.InitialTinybars)).
		SetMaxAutomaticTokenAssociations(n.MaxAutomaticTokenAssociations)
	if n.Memo != "" {
		tx.SetAccountMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Account created successfully.\nAccount ID: %s\nTransaction ID: %s", raw.AccountID, raw.TransactionID)
	})
}

func updateAccount(ctx context.Context, rt *kit.Runtime, p normalise.UpdateAccountParams) (*kit.Result, error) {
	n, err := normalise.NormaliseUpdateAccount(p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewAccountUpdateTransaction().SetAccountID(n.AccountID)
	if n.MaxAutomaticTokenAssociations != nil {
		tx.SetMaxAutomaticTokenAssociations(*n.MaxAutomaticTokenAssociations)
	}
	if n.StakedAccountID != nil {
		tx.SetStakedAccountID(*n.StakedAccountID)
	}
	if n.DeclineStakingReward != nil {
		tx.SetDeclineStakingReward(*n.DeclineStakingReward)
	}
	if n.Memo != nil {
		tx.SetAccountMemo(*n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Account %s updated.\nTransaction ID: %s", n.AccountID, raw.TransactionID)
	})
}

func deleteAccount(ctx context.Context, rt *kit.Runtime, p normalise.DeleteAccountParams) (*kit.Result, error) {
	n, err := normalise.NormaliseDeleteAccount(p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewAccountDeleteTransaction().
		SetAccountID(n.AccountID).
		SetTransferAccountID(n.TransferAccountID)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Account %s deleted, remaining balance sent to %s.\nTransaction ID: %s",
			n.AccountID, n.TransferAccountID, raw.TransactionID)
	})
}

func signSchedule(ctx context.Context, rt *kit.Runtime, p normalise.ScheduleIDParams) (*kit.Result, error) {
	id, err := normalise.ParseScheduleID(p.ScheduleID)
	if err != nil {
		return nil, err
	}
	tx := hedera.NewScheduleSignTransaction().SetScheduleID(id)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Scheduled transaction %s signed.\nTransaction ID: %s", id, raw.TransactionID)
	})
}

func deleteSchedule(ctx context.Context, rt *kit.Runtime, p normalise.ScheduleIDParams) (*kit.Result, error) {
	id, err := normalise.ParseScheduleID(p.ScheduleID)
	if err != nil {
		return nil, err
	}
	tx := hedera.NewScheduleDeleteTransaction().SetScheduleID(id)
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Scheduled transaction %s deleted.\nTransaction ID: %s", id, raw.TransactionID)
	})
}
