// Package token provides the core token plugin: fungible and non-fungible
// token creation, minting, airdrops and associations.
package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/kit/dispatch"
	"hedera-agent-kit/pkg/kit/normalise"
)

// PluginName identifies the plugin in a registry.
const PluginName = "core-token-plugin"

// Tool methods.
const (
	CreateFungibleToken    = "create_fungible_token_tool"
	CreateNonFungibleToken = "create_non_fungible_token_tool"
	AirdropFungibleToken   = "airdrop_fungible_token_tool"
	MintFungibleToken      = "mint_fungible_token_tool"
	MintNonFungibleToken   = "mint_non_fungible_token_tool"
	AssociateToken         = "associate_token_tool"
	DissociateToken        = "dissociate_token_tool"
)

// Plugin returns the token plugin.
func Plugin() kit.Plugin {
	return kit.Plugin{
		Name:         PluginName,
		Version:      "1.0.0",
		Description:  "Create, mint, airdrop and associate Hedera Token Service tokens",
		Capabilities: []kit.Capability{kit.CapabilityTransaction},
		Tools:        Tools,
	}
}

// Tools builds the plugin tools.
func Tools(_ kit.Context) []kit.Tool {
	return []kit.Tool{
		kit.NewTool(CreateFungibleToken, "Create Fungible Token",
			"Create a fungible token. Supplies are in display units; decimals default to 0, "+
				"supply type to finite with a max supply of 1,000,000. The treasury defaults to the acting account.",
			"Failed to create fungible token", createFungibleToken),
		kit.NewTool(CreateNonFungibleToken, "Create Non-Fungible Token",
			"Create an NFT collection with the acting account key as supply key. Max supply defaults to 100.",
			"Failed to create non-fungible token", createNonFungibleToken),
		kit.NewTool(AirdropFungibleToken, "Airdrop Fungible Token",
			"Airdrop a fungible token from the source account (the acting account by default) to recipients. "+
				"Amounts are in display units. Optionally schedule the airdrop.",
			"Failed to airdrop fungible token", airdropFungibleToken),
		kit.NewTool(MintFungibleToken, "Mint Fungible Token",
			"Mint additional supply of a fungible token. The amount is in display units.",
			"Failed to mint fungible token", mintFungibleToken),
		kit.NewTool(MintNonFungibleToken, "Mint Non-Fungible Token",
			"Mint NFTs, one per metadata URI.",
			"Failed to mint non-fungible token", mintNonFungibleToken),
		kit.NewTool(AssociateToken, "Associate Token",
			"Associate tokens with an account (the acting account by default).",
			"Failed to associate token", associateToken),
		kit.NewTool(DissociateToken, "Dissociate Token",
			"Dissociate tokens from an account (the acting account by default).",
			"Failed to dissociate token", dissociateToken),
	}
}

func createFungibleToken(ctx context.Context, rt *kit.Runtime, p normalise.CreateFungibleTokenParams) (*kit.Result, error) {
	n, err := normalise.NormaliseCreateFungibleToken(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenCreateTransaction().
		SetTokenName(n.Name).
		SetTokenSymbol(n.Symbol).
		SetTokenType(hedera.TokenTypeFungibleCommon).
		SetDecimals(n.Decimals).
		SetInitialSupply(n.InitialSupply).
		SetTreasuryAccountID(n.Treasury).
		SetSupplyType(n.SupplyType)
	if n.SupplyType == hedera.TokenSupplyTypeFinite {
		tx.SetMaxSupply(n.MaxSupply)
	}
	if n.SupplyKey != nil {
		tx.SetSupplyKey(n.SupplyKey)
	}
	if n.Memo != "" {
		tx.SetTokenMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Token created successfully.\nToken ID: %s\nTransaction ID: %s", raw.TokenID, raw.TransactionID)
	})
}

func createNonFungibleToken(ctx context.Context, rt *kit.Runtime, p normalise.CreateNonFungibleTokenParams) (*kit.Result, error) {
	n, err := normalise.NormaliseCreateNonFungibleToken(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenCreateTransaction().
		SetTokenName(n.Name).
		SetTokenSymbol(n.Symbol).
		SetTokenType(hedera.TokenTypeNonFungibleUnique).
		SetDecimals(0).
		SetInitialSupply(0).
		SetSupplyType(hedera.TokenSupplyTypeFinite).
		SetMaxSupply(n.MaxSupply).
		SetTreasuryAccountID(n.Treasury).
		SetSupplyKey(n.SupplyKey)
	if n.Memo != "" {
		tx.SetTokenMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("NFT collection created successfully.\nToken ID: %s\nTransaction ID: %s", raw.TokenID, raw.TransactionID)
	})
}

func airdropFungibleToken(ctx context.Context, rt *kit.Runtime, p normalise.AirdropFungibleTokenParams) (*kit.Result, error) {
	n, err := normalise.NormaliseAirdropFungibleToken(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenAirdropTransaction()
	for _, t := range n.Transfers {
		tx.AddTokenTransfer(n.TokenID, t.AccountID, t.Amount)
	}
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}

	if n.Schedule != nil {
		scheduled, err := hedera.NewScheduleCreateTransaction().SetScheduledTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("schedule airdrop: %w", err)
		}
		return dispatch.Handle(ctx, rt, dispatch.ApplySchedule(scheduled, *n.Schedule), dispatch.ScheduledMessage)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Token %s successfully airdropped to %d recipient(s).\nTransaction ID: %s",
			n.TokenID, len(n.Transfers)-1, raw.TransactionID)
	})
}

func mintFungibleToken(ctx context.Context, rt *kit.Runtime, p normalise.MintFungibleTokenParams) (*kit.Result, error) {
	n, err := normalise.NormaliseMintFungibleToken(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenMintTransaction().SetTokenID(n.TokenID).SetAmount(n.Amount)

	if n.Schedule != nil {
		scheduled, err := hedera.NewScheduleCreateTransaction().SetScheduledTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("schedule mint: %w", err)
		}
		return dispatch.Handle(ctx, rt, dispatch.ApplySchedule(scheduled, *n.Schedule), dispatch.ScheduledMessage)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Successfully minted %s of token %s.\nTransaction ID: %s",
			normalise.DisplayString(int64(n.Amount), n.Decimals), n.TokenID, raw.TransactionID)
	})
}

func mintNonFungibleToken(ctx context.Context, rt *kit.Runtime, p normalise.MintNonFungibleTokenParams) (*kit.Result, error) {
	n, err := normalise.NormaliseMintNonFungibleToken(ctx, p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenMintTransaction().SetTokenID(n.TokenID).SetMetadatas(n.Metadata)

	if n.Schedule != nil {
		scheduled, err := hedera.NewScheduleCreateTransaction().SetScheduledTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("schedule mint: %w", err)
		}
		return dispatch.Handle(ctx, rt, dispatch.ApplySchedule(scheduled, *n.Schedule), dispatch.ScheduledMessage)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		serials := make([]string, 0, len(raw.SerialNumbers))
		for _, s := range raw.SerialNumbers {
			serials = append(serials, fmt.Sprint(s))
		}
		return fmt.Sprintf("Successfully minted %d NFT(s) of token %s.\nSerial numbers: %s\nTransaction ID: %s",
			len(n.Metadata), n.TokenID, strings.Join(serials, ", "), raw.TransactionID)
	})
}

func associateToken(ctx context.Context, rt *kit.Runtime, p normalise.TokenAssociationParams) (*kit.Result, error) {
	n, err := normalise.NormaliseTokenAssociation(p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenAssociateTransaction().SetAccountID(n.AccountID).SetTokenIDs(n.TokenIDs...)
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Tokens %s associated with account %s.\nTransaction ID: %s",
			joinTokenIDs(n.TokenIDs), n.AccountID, raw.TransactionID)
	})
}

func dissociateToken(ctx context.Context, rt *kit.Runtime, p normalise.TokenAssociationParams) (*kit.Result, error) {
	n, err := normalise.NormaliseTokenAssociation(p, normalise.NewResolver(rt))
	if err != nil {
		return nil, err
	}
	tx := hedera.NewTokenDissociateTransaction().SetAccountID(n.AccountID).SetTokenIDs(n.TokenIDs...)
	if n.Memo != "" {
		tx.SetTransactionMemo(n.Memo)
	}
	return dispatch.Handle(ctx, rt, tx, func(raw *dispatch.RawResponse) string {
		return fmt.Sprintf("Tokens %s dissociated from account %s.\nTransaction ID: %s",
			joinTokenIDs(n.TokenIDs), n.AccountID, raw.TransactionID)
	})
}

func joinTokenIDs(ids []hedera.TokenID) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return strings.Join(out, ", ")
}
