package normalise

import (
	"hedera-agent-kit/pkg/kit"
)

func invalid(format string, args ...any) error { return kit.Invalid(format, args...) }

func invalidField(field, value string) error {
	return kit.Invalid("invalid %s %q", field, value)
}

// HbarTransfer credits one recipient.
type HbarTransfer struct {
	AccountID string     `json:"accountId" validate:"required" jsonschema_description:"Recipient account id"`
	Amount    kit.Amount `json:"amount" validate:"required" jsonschema_description:"Amount of HBAR to send"`
}

// TransferHbarParams are the arguments of transfer_hbar_tool.
type TransferHbarParams struct {
	Transfers        []HbarTransfer    `json:"transfers" validate:"required,min=1,dive" jsonschema_description:"Recipients and amounts"`
	SourceAccountID  string            `json:"sourceAccountId,omitempty" jsonschema_description:"Account the HBAR is taken from; defaults to the acting account"`
	TransactionMemo  string            `json:"transactionMemo,omitempty" validate:"max=100"`
	SchedulingParams *SchedulingParams `json:"schedulingParams,omitempty"`
}

// ApproveHbarAllowanceParams are the arguments of approve_hbar_allowance_tool.
type ApproveHbarAllowanceParams struct {
	OwnerAccountID   string     `json:"ownerAccountId,omitempty" jsonschema_description:"Owner of the allowance; defaults to the acting account"`
	SpenderAccountID string     `json:"spenderAccountId" validate:"required" jsonschema_description:"Account allowed to spend"`
	Amount           kit.Amount `json:"amount" validate:"required" jsonschema_description:"HBAR amount to approve"`
	TransactionMemo  string     `json:"transactionMemo,omitempty" validate:"max=100"`
}

// CreateAccountParams are the arguments of create_account_tool.
type CreateAccountParams struct {
	PublicKey                     string      `json:"publicKey,omitempty" jsonschema_description:"Key of the new account; defaults to the acting account key"`
	AccountMemo                   string      `json:"accountMemo,omitempty" validate:"max=100"`
	InitialBalance                *kit.Amount `json:"initialBalance,omitempty" jsonschema_description:"Initial balance in HBAR"`
	MaxAutomaticTokenAssociations *int32      `json:"maxAutomaticTokenAssociations,omitempty" validate:"omitempty,min=-1" jsonschema_description:"-1 for unlimited"`
}

// UpdateAccountParams are the arguments of update_account_tool.
type UpdateAccountParams struct {
	AccountID                     string  `json:"accountId,omitempty" jsonschema_description:"Account to update; defaults to the acting account"`
	MaxAutomaticTokenAssociations *int32  `json:"maxAutomaticTokenAssociations,omitempty" validate:"omitempty,min=-1"`
	StakedAccountID               string  `json:"stakedAccountId,omitempty"`
	DeclineStakingReward          *bool   `json:"declineStakingReward,omitempty"`
	AccountMemo                   *string `json:"accountMemo,omitempty" validate:"omitempty,max=100"`
}

// DeleteAccountParams are the arguments of delete_account_tool.
type DeleteAccountParams struct {
	AccountID         string `json:"accountId" validate:"required" jsonschema_description:"Account to delete"`
	TransferAccountID string `json:"transferAccountId,omitempty" jsonschema_description:"Receives the remaining balance; defaults to the acting account"`
}

// ScheduleIDParams are the arguments of sign_schedule_transaction_tool and
// schedule_delete_tool.
type ScheduleIDParams struct {
	ScheduleID string `json:"scheduleId" validate:"required" jsonschema_description:"Schedule entity id"`
}

// CreateTopicParams are the arguments of create_topic_tool.
type CreateTopicParams struct {
	TopicMemo       string    `json:"topicMemo,omitempty" validate:"max=100"`
	TransactionMemo string    `json:"transactionMemo,omitempty" validate:"max=100"`
	AdminKey        KeyOption `json:"adminKey,omitempty" jsonschema_description:"Defaults to the acting account key; false for an immutable topic"`
	SubmitKey       KeyOption `json:"submitKey,omitempty" jsonschema_description:"true for the acting account key, or a public key; omitted means anyone may submit"`
}

// SubmitTopicMessageParams are the arguments of submit_topic_message_tool.
type SubmitTopicMessageParams struct {
	TopicID         string `json:"topicId" validate:"required"`
	Message         string `json:"message" validate:"required"`
	TransactionMemo string `json:"transactionMemo,omitempty" validate:"max=100"`
}

// TopicIDParams are the arguments of delete_topic_tool and
// get_topic_info_query_tool.
type TopicIDParams struct {
	TopicID string `json:"topicId" validate:"required"`
}

// CreateFungibleTokenParams are the arguments of create_fungible_token_tool.
type CreateFungibleTokenParams struct {
	TokenName         string      `json:"tokenName" validate:"required,max=100"`
	TokenSymbol       string      `json:"tokenSymbol" validate:"required,max=100"`
	InitialSupply     *kit.Amount `json:"initialSupply,omitempty" jsonschema_description:"Initial supply in display units, default 0"`
	Decimals          *int32      `json:"decimals,omitempty" validate:"omitempty,min=0,max=18" jsonschema_description:"Default 0"`
	SupplyType        string      `json:"supplyType,omitempty" validate:"omitempty,oneof=finite infinite" jsonschema_description:"finite (default) or infinite"`
	MaxSupply         *kit.Amount `json:"maxSupply,omitempty" jsonschema_description:"Max supply in display units for finite tokens, default 1000000"`
	TreasuryAccountID string      `json:"treasuryAccountId,omitempty"`
	SupplyKey         KeyOption   `json:"supplyKey,omitempty" jsonschema_description:"true for the acting account key, or a public key; required to mint later"`
	TokenMemo         string      `json:"tokenMemo,omitempty" validate:"max=100"`
}

// CreateNonFungibleTokenParams are the arguments of
// create_non_fungible_token_tool.
type CreateNonFungibleTokenParams struct {
	TokenName         string `json:"tokenName" validate:"required,max=100"`
	TokenSymbol       string `json:"tokenSymbol" validate:"required,max=100"`
	MaxSupply         *int64 `json:"maxSupply,omitempty" validate:"omitempty,min=1" jsonschema_description:"Default 100"`
	TreasuryAccountID string `json:"treasuryAccountId,omitempty"`
	TokenMemo         string `json:"tokenMemo,omitempty" validate:"max=100"`
}

// TokenRecipient receives part of an airdrop.
type TokenRecipient struct {
	AccountID string     `json:"accountId" validate:"required"`
	Amount    kit.Amount `json:"amount" validate:"required" jsonschema_description:"Amount in display units"`
}

// AirdropFungibleTokenParams are the arguments of airdrop_fungible_token_tool.
type AirdropFungibleTokenParams struct {
	TokenID          string            `json:"tokenId" validate:"required"`
	SourceAccountID  string            `json:"sourceAccountId,omitempty"`
	Recipients       []TokenRecipient  `json:"recipients" validate:"required,min=1,dive"`
	TransactionMemo  string            `json:"transactionMemo,omitempty" validate:"max=100"`
	SchedulingParams *SchedulingParams `json:"schedulingParams,omitempty"`
}

// MintFungibleTokenParams are the arguments of mint_fungible_token_tool.
type MintFungibleTokenParams struct {
	TokenID          string            `json:"tokenId" validate:"required"`
	Amount           kit.Amount        `json:"amount" validate:"required" jsonschema_description:"Amount in display units"`
	SchedulingParams *SchedulingParams `json:"schedulingParams,omitempty"`
}

// MintNonFungibleTokenParams are the arguments of mint_non_fungible_token_tool.
type MintNonFungibleTokenParams struct {
	TokenID          string            `json:"tokenId" validate:"required"`
	URIs             []string          `json:"uris" validate:"required,min=1,max=10,dive,required,max=100" jsonschema_description:"Metadata URIs, one per serial"`
	SchedulingParams *SchedulingParams `json:"schedulingParams,omitempty"`
}

// TokenAssociationParams are the arguments of associate_token_tool and
// dissociate_token_tool.
type TokenAssociationParams struct {
	AccountID       string   `json:"accountId,omitempty" jsonschema_description:"Defaults to the acting account"`
	TokenIDs        []string `json:"tokenIds" validate:"required,min=1,dive,required"`
	TransactionMemo string   `json:"transactionMemo,omitempty" validate:"max=100"`
}

// CreateERC20Params are the arguments of create_erc20_tool.
type CreateERC20Params struct {
	TokenName     string `json:"tokenName" validate:"required"`
	TokenSymbol   string `json:"tokenSymbol" validate:"required"`
	Decimals      *uint8 `json:"decimals,omitempty" jsonschema_description:"Default 18"`
	InitialSupply *int64 `json:"initialSupply,omitempty" validate:"omitempty,min=0" jsonschema_description:"Initial supply in base units, default 0"`
}

// TransferERC20Params are the arguments of transfer_erc20_tool.
type TransferERC20Params struct {
	ContractID       string     `json:"contractId" validate:"required" jsonschema_description:"Token contract as Hedera id or EVM address"`
	RecipientAddress string     `json:"recipientAddress" validate:"required" jsonschema_description:"Hedera id or EVM address"`
	Amount           kit.Amount `json:"amount" validate:"required" jsonschema_description:"Amount in base units"`
}

// CreateERC721Params are the arguments of create_erc721_tool.
type CreateERC721Params struct {
	TokenName   string `json:"tokenName" validate:"required"`
	TokenSymbol string `json:"tokenSymbol" validate:"required"`
	BaseURI     string `json:"baseURI,omitempty"`
}

// MintERC721Params are the arguments of mint_erc721_tool.
type MintERC721Params struct {
	ContractID string `json:"contractId" validate:"required"`
	ToAddress  string `json:"toAddress,omitempty" jsonschema_description:"Recipient; defaults to the acting account"`
}

// AccountParams select an account, defaulting to the acting one.
type AccountParams struct {
	AccountID string `json:"accountId,omitempty" jsonschema_description:"Defaults to the acting account"`
}

// RequiredAccountParams select an account explicitly.
type RequiredAccountParams struct {
	AccountID string `json:"accountId" validate:"required"`
}

// AccountTokenBalancesParams are the arguments of
// get_account_token_balances_query_tool.
type AccountTokenBalancesParams struct {
	AccountID string `json:"accountId,omitempty" jsonschema_description:"Defaults to the acting account"`
	TokenID   string `json:"tokenId,omitempty" jsonschema_description:"Only this token"`
}

// TokenIDParams select a token.
type TokenIDParams struct {
	TokenID string `json:"tokenId" validate:"required"`
}

// TopicMessagesParams are the arguments of get_topic_messages_query_tool.
type TopicMessagesParams struct {
	TopicID   string `json:"topicId" validate:"required"`
	StartTime string `json:"startTime,omitempty" jsonschema_description:"RFC3339 lower bound, inclusive"`
	EndTime   string `json:"endTime,omitempty" jsonschema_description:"RFC3339 upper bound, inclusive"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema_description:"Default 100"`
}

// TransactionRecordParams are the arguments of
// get_transaction_record_query_tool.
type TransactionRecordParams struct {
	TransactionID string `json:"transactionId" validate:"required" jsonschema_description:"0.0.5@1700000000.000000001 or 0.0.5-1700000000-000000001"`
	Nonce         *int   `json:"nonce,omitempty" validate:"omitempty,min=0"`
}

// ExchangeRateParams are the arguments of get_exchange_rate_tool.
type ExchangeRateParams struct {
	Timestamp string `json:"timestamp,omitempty" jsonschema_description:"Mirror timestamp seconds.nanos; current rate when empty"`
}

func describeAmount(field string, err error) error {
	return kit.Invalid("%s: %v", field, err)
}
