// Package queries provides the core read-only plugin backed by the mirror
// node.
package queries

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/normalise"
	"hedera-agent-kit/pkg/mirror"
)

// PluginName identifies the plugin in a registry.
const PluginName = "core-queries-plugin"

// Tool methods.
const (
	GetHbarBalance          = "get_hbar_balance_query_tool"
	GetAccount              = "get_account_query_tool"
	GetAccountTokenBalances = "get_account_token_balances_query_tool"
	GetTokenInfo            = "get_token_info_query_tool"
	GetTopicInfo            = "get_topic_info_query_tool"
	GetTopicMessages        = "get_topic_messages_query_tool"
	GetTransactionRecord    = "get_transaction_record_query_tool"
	GetExchangeRate         = "get_exchange_rate_tool"
	GetPendingAirdrops      = "get_pending_airdrop_query_tool"
	GetScheduleInfo         = "get_schedule_info_query_tool"
)

// Plugin returns the queries plugin.
func Plugin() kit.Plugin {
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Read balances, accounts, tokens, topics, transactions, schedules and exchange rates from the mirror node",
		Capabilities: []kit.Capability{kit.CapabilityQuery},
		Tools:        Tools,
	}
}

// Tools builds the plugin tools.
func Tools(_ kit.Context) []kit.Tool {
	return []kit.Tool{
		kit.NewTool(GetHbarBalance, "Get HBAR Balance",
			"Return the HBAR balance of an account (the acting account by default).",
			"Failed to get HBAR balance", hbarBalance),
		kit.NewTool(GetAccount, "Get Account",
			"Return details of an account: key, balance, memo, staking and EVM address.",
			"Failed to get account", account),
		kit.NewTool(GetAccountTokenBalances, "Get Account Token Balances",
			"Return the token balances of an account (the acting account by default), optionally for one token.",
			"Failed to get account token balances", tokenBalances),
		kit.NewTool(GetTokenInfo, "Get Token Info",
			"Return name, symbol, decimals, supply and keys of a token.",
			"Failed to get token info", tokenInfo),
		kit.NewTool(GetTopicInfo, "Get Topic Info",
			"Return memo, keys and auto renew settings of a consensus topic.",
			"Failed to get topic info", topicInfo),
		kit.NewTool(GetTopicMessages, "Get Topic Messages",
			"Return messages of a consensus topic, optionally between two RFC3339 times.",
			"Failed to get topic messages", topicMessages),
		kit.NewTool(GetTransactionRecord, "Get Transaction Record",
			"Return the record of a transaction by its id.",
			"Failed to get transaction record", transactionRecord),
		kit.NewTool(GetExchangeRate, "Get Exchange Rate",
			"Return the current HBAR to USD exchange rate, or the rate at a given timestamp.",
			"Failed to get exchange rate", exchangeRate),
		kit.NewTool(GetPendingAirdrops, "Get Pending Airdrops",
			"Return the airdrops an account (the acting account by default) has not claimed yet.",
			"Failed to get pending airdrops", pendingAirdrops),
		kit.NewTool(GetScheduleInfo, "Get Schedule Info",
			"Return the state and signatures of a scheduled transaction.",
			"Failed to get schedule info", scheduleInfo),
	}
}

func mirrorOf(rt *kit.Runtime) (mirror.Service, error) {
	if rt == nil || rt.Mirror == nil {
		return nil, normalise.ErrMirrorUnavailable
	}
	return rt.Mirror, nil
}

func hbarBalance(ctx context.Context, rt *kit.Runtime, p normalise.AccountParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.NewResolver(rt).Account(p.AccountID)
	if err != nil {
		return nil, err
	}
	tinybars, err := svc.GetAccountHbarBalance(ctx, id.String())
	if err != nil {
		return nil, err
	}
	balance := normalise.ToDisplayUnits(tinybars, normalise.HbarDecimals).String()
	return &kit.Result{
		HumanMessage: fmt.Sprintf("Account %s has a balance of %s HBAR", id, balance),
		Raw: map[string]any{
			"accountId":   id.String(),
			"hbarBalance": balance,
			"tinybars":    tinybars,
		},
	}, nil
}

func account(ctx context.Context, rt *kit.Runtime, p normalise.RequiredAccountParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	info, err := svc.GetAccount(ctx, strings.TrimSpace(p.AccountID))
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Details for account %s:\n", info.Account)
	fmt.Fprintf(&b, "- Balance: %s HBAR\n", normalise.ToDisplayUnits(info.Balance.Balance, normalise.HbarDecimals))
	if info.Key != nil {
		fmt.Fprintf(&b, "- Key: %s (%s)\n", info.Key.Key, info.Key.Type)
	}
	if info.EVMAddress != "" {
		fmt.Fprintf(&b, "- EVM address: %s\n", info.EVMAddress)
	}
	if info.Memo != "" {
		fmt.Fprintf(&b, "- Memo: %s\n", info.Memo)
	}
	fmt.Fprintf(&b, "- Max automatic token associations: %d\n", info.MaxAutomaticTokenAssociations)
	if info.StakedAccountID != nil {
		fmt.Fprintf(&b, "- Staked to account: %s\n", *info.StakedAccountID)
	}
	if info.StakedNodeID != nil {
		fmt.Fprintf(&b, "- Staked to node: %d\n", *info.StakedNodeID)
	}
	if info.Deleted {
		b.WriteString("- Deleted: yes\n")
	}
	return &kit.Result{HumanMessage: b.String(), Raw: info}, nil
}

func tokenBalances(ctx context.Context, rt *kit.Runtime, p normalise.AccountTokenBalancesParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.NewResolver(rt).Account(p.AccountID)
	if err != nil {
		return nil, err
	}
	if p.TokenID != "" {
		if _, err := normalise.ParseTokenID(p.TokenID); err != nil {
			return nil, err
		}
	}
	balances, err := svc.GetAccountTokenBalances(ctx, id.String(), strings.TrimSpace(p.TokenID))
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return &kit.Result{HumanMessage: fmt.Sprintf("Account %s holds no tokens", id), Raw: balances}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Token balances of account %s:\n", id)
	for _, bal := range balances {
		decimals := int32(0)
		if bal.Decimals != nil {
			decimals = int32(*bal.Decimals)
		} else if info, err := svc.GetTokenInfo(ctx, bal.TokenID); err == nil {
			if d, err := info.DecimalPlaces(); err == nil {
				decimals = d
			}
		}
		fmt.Fprintf(&b, "- %s: %s\n", bal.TokenID, normalise.ToDisplayUnits(bal.Balance, decimals))
	}
	return &kit.Result{HumanMessage: b.String(), Raw: balances}, nil
}

func tokenInfo(ctx context.Context, rt *kit.Runtime, p normalise.TokenIDParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.ParseTokenID(p.TokenID)
	if err != nil {
		return nil, err
	}
	info, err := svc.GetTokenInfo(ctx, id.String())
	if err != nil {
		return nil, err
	}
	decimals, err := info.DecimalPlaces()
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Details for token %s:\n", info.TokenID)
	fmt.Fprintf(&b, "- Name: %s\n- Symbol: %s\n- Type: %s\n- Decimals: %d\n", info.Name, info.Symbol, info.Type, decimals)
	fmt.Fprintf(&b, "- Total supply: %s\n", displaySupply(info.TotalSupply, decimals))
	fmt.Fprintf(&b, "- Supply type: %s\n", info.SupplyType)
	if info.SupplyType == "FINITE" {
		fmt.Fprintf(&b, "- Max supply: %s\n", displaySupply(info.MaxSupply, decimals))
	}
	fmt.Fprintf(&b, "- Treasury: %s\n", info.TreasuryAccountID)
	fmt.Fprintf(&b, "- Supply key: %s\n", keyOrNone(info.SupplyKey))
	fmt.Fprintf(&b, "- Admin key: %s\n", keyOrNone(info.AdminKey))
	if info.Memo != "" {
		fmt.Fprintf(&b, "- Memo: %s\n", info.Memo)
	}
	return &kit.Result{HumanMessage: b.String(), Raw: info}, nil
}

func topicInfo(ctx context.Context, rt *kit.Runtime, p normalise.TopicIDParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.ParseTopicID(p.TopicID)
	if err != nil {
		return nil, err
	}
	info, err := svc.GetTopicInfo(ctx, id.String())
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Details for topic %s:\n", info.TopicID)
	if info.Memo != "" {
		fmt.Fprintf(&b, "- Memo: %s\n", info.Memo)
	}
	fmt.Fprintf(&b, "- Admin key: %s\n", keyOrNone(info.AdminKey))
	fmt.Fprintf(&b, "- Submit key: %s\n", keyOrNone(info.SubmitKey))
	if info.AutoRenewAccount != "" {
		fmt.Fprintf(&b, "- Auto renew account: %s\n", info.AutoRenewAccount)
	}
	fmt.Fprintf(&b, "- Auto renew period: %ds\n", info.AutoRenewPeriod)
	fmt.Fprintf(&b, "- Created: %s\n", info.CreatedTimestamp)
	return &kit.Result{HumanMessage: b.String(), Raw: info}, nil
}

func topicMessages(ctx context.Context, rt *kit.Runtime, p normalise.TopicMessagesParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	q, err := normalise.NormaliseTopicMessagesQuery(p)
	if err != nil {
		return nil, err
	}
	msgs, err := svc.GetTopicMessages(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &kit.Result{HumanMessage: fmt.Sprintf("No messages found for topic %s", p.TopicID), Raw: msgs}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Messages for topic %s:\n", p.TopicID)
	for _, m := range msgs {
		fmt.Fprintf(&b, "- #%d (%s): %s\n", m.SequenceNumber, m.ConsensusTimestamp, m.Text())
	}
	return &kit.Result{HumanMessage: b.String(), Raw: msgs}, nil
}

func transactionRecord(ctx context.Context, rt *kit.Runtime, p normalise.TransactionRecordParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := mirror.NormaliseTransactionID(p.TransactionID)
	if err != nil {
		return nil, kit.Invalid("%v", err)
	}
	txs, err := svc.GetTransactionRecord(ctx, id, p.Nonce)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return &kit.Result{HumanMessage: fmt.Sprintf("No record found for transaction %s", id), Raw: txs}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction details for %s:\n", id)
	for _, tx := range txs {
		fmt.Fprintf(&b, "- %s: %s, fee %s HBAR, consensus at %s\n",
			tx.Name, tx.Result, normalise.ToDisplayUnits(tx.ChargedTxFee, normalise.HbarDecimals), tx.ConsensusTimestamp)
		if memo := tx.Memo(); memo != "" {
			fmt.Fprintf(&b, "  memo: %s\n", memo)
		}
		for _, t := range tx.Transfers {
			fmt.Fprintf(&b, "  %s %s HBAR\n", t.Account, normalise.ToDisplayUnits(t.Amount, normalise.HbarDecimals))
		}
		for _, t := range tx.TokenTransfers {
			fmt.Fprintf(&b, "  %s %d of %s\n", t.Account, t.Amount, t.TokenID)
		}
	}
	return &kit.Result{HumanMessage: b.String(), Raw: txs}, nil
}

func exchangeRate(ctx context.Context, rt *kit.Runtime, p normalise.ExchangeRateParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	rate, err := svc.GetExchangeRate(ctx, strings.TrimSpace(p.Timestamp))
	if err != nil {
		return nil, err
	}
	return &kit.Result{
		HumanMessage: fmt.Sprintf("Current exchange rate: 1 HBAR = %.6f USD (%d cents per %d HBAR), valid until %d.\nNext rate: 1 HBAR = %.6f USD",
			rate.CurrentRate.USDPerHbar(), rate.CurrentRate.CentEquivalent, rate.CurrentRate.HbarEquivalent,
			rate.CurrentRate.ExpirationTime, rate.NextRate.USDPerHbar()),
		Raw: rate,
	}, nil
}

func pendingAirdrops(ctx context.Context, rt *kit.Runtime, p normalise.AccountParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.NewResolver(rt).Account(p.AccountID)
	if err != nil {
		return nil, err
	}
	airdrops, err := svc.GetPendingAirdrops(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if len(airdrops) == 0 {
		return &kit.Result{HumanMessage: fmt.Sprintf("No pending airdrops for account %s", id), Raw: airdrops}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending airdrops for account %s:\n", id)
	for _, a := range airdrops {
		if a.SerialNumber != nil {
			fmt.Fprintf(&b, "- NFT %s #%d from %s\n", a.TokenID, *a.SerialNumber, a.SenderID)
			continue
		}
		fmt.Fprintf(&b, "- %d base units of %s from %s\n", a.Amount, a.TokenID, a.SenderID)
	}
	return &kit.Result{HumanMessage: b.String(), Raw: airdrops}, nil
}

func scheduleInfo(ctx context.Context, rt *kit.Runtime, p normalise.ScheduleIDParams) (*kit.Result, error) {
	svc, err := mirrorOf(rt)
	if err != nil {
		return nil, err
	}
	id, err := normalise.ParseScheduleID(p.ScheduleID)
	if err != nil {
		return nil, err
	}
	info, err := svc.GetScheduleInfo(ctx, id.String())
	if err != nil {
		return nil, err
	}
	state := "pending"
	switch {
	case info.Deleted:
		state = "deleted"
	case info.ExecutedTimestamp != nil:
		state = "executed at " + *info.ExecutedTimestamp
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Details for schedule %s:\n", info.ScheduleID)
	fmt.Fprintf(&b, "- State: %s\n", state)
	fmt.Fprintf(&b, "- Creator: %s\n- Payer: %s\n", info.CreatorAccountID, info.PayerAccountID)
	if info.ExpirationTime != nil {
		fmt.Fprintf(&b, "- Expires: %s\n", *info.ExpirationTime)
	}
	fmt.Fprintf(&b, "- Wait for expiry: %t\n", info.WaitForExpiry)
	fmt.Fprintf(&b, "- Signatures: %d\n", len(info.Signatures))
	if info.Memo != "" {
		fmt.Fprintf(&b, "- Memo: %s\n", info.Memo)
	}
	return &kit.Result{HumanMessage: b.String(), Raw: info}, nil
}

func keyOrNone(k *mirror.Key) string {
	if k == nil || k.Key == "" {
		return "none"
	}
	return k.Key
}

func displaySupply(raw string, decimals int32) string {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return d.Shift(-decimals).String()
}
