package normalise

import (
	"context"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/shopspring/decimal"

	"hedera-agent-kit/pkg/kit/dispatch"
)

// DefaultMaxAutomaticTokenAssociations lets new accounts receive any token.
const DefaultMaxAutomaticTokenAssociations int32 = -1

// AccountAmount is one side of an HBAR transfer in tinybars.
type AccountAmount struct {
	AccountID hedera.AccountID
	Tinybars  int64
}

// TransferHbar is the normalised form of TransferHbarParams.
type TransferHbar struct {
	Transfers []AccountAmount
	Memo      string
	Schedule  *dispatch.ScheduleOptions
}

// NormaliseTransferHbar converts every recipient amount to tinybars and adds
// the negated total as the debit of the source account.
func NormaliseTransferHbar(ctx context.Context, p TransferHbarParams, r *Resolver) (*TransferHbar, error) {
	source, err := r.Account(p.SourceAccountID)
	if err != nil {
		return nil, err
	}

	out := &TransferHbar{Memo: p.TransactionMemo}
	var total int64
	for _, t := range p.Transfers {
		recipient, err := ParseAccountID(t.AccountID)
		if err != nil {
			return nil, err
		}
		if !t.Amount.IsPositive() {
			return nil, invalid("transfer amount for %s must be positive", t.AccountID)
		}
		tinybars, err := HbarToTinybars(t.Amount.Decimal)
		if err != nil {
			return nil, describeAmount("amount", err)
		}
		if total, err = sumBaseUnits(total, tinybars); err != nil {
			return nil, err
		}
		out.Transfers = append(out.Transfers, AccountAmount{AccountID: recipient, Tinybars: tinybars})
	}
	out.Transfers = append(out.Transfers, AccountAmount{AccountID: source, Tinybars: -total})

	out.Schedule, err = Schedule(ctx, p.SchedulingParams, r)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveHbarAllowance is the normalised form of ApproveHbarAllowanceParams.
type ApproveHbarAllowance struct {
	Owner    hedera.AccountID
	Spender  hedera.AccountID
	Tinybars int64
	Memo     string
}

// NormaliseApproveHbarAllowance defaults the owner to the acting account.
func NormaliseApproveHbarAllowance(p ApproveHbarAllowanceParams, r *Resolver) (*ApproveHbarAllowance, error) {
	owner, err := r.Account(p.OwnerAccountID)
	if err != nil {
		return nil, err
	}
	spender, err := ParseAccountID(p.SpenderAccountID)
	if err != nil {
		return nil, err
	}
	tinybars, err := HbarToTinybars(p.Amount.Decimal)
	if err != nil {
		return nil, describeAmount("amount", err)
	}
	return &ApproveHbarAllowance{Owner: owner, Spender: spender, Tinybars: tinybars, Memo: p.TransactionMemo}, nil
}

// CreateAccount is the normalised form of CreateAccountParams.
type CreateAccount struct {
	Key                           hedera.PublicKey
	Memo                          string
	InitialTinybars               int64
	MaxAutomaticTokenAssociations int32
}

// NormaliseCreateAccount defaults the key to the acting account key and the
// automatic associations to unlimited.
func NormaliseCreateAccount(ctx context.Context, p CreateAccountParams, r *Resolver) (*CreateAccount, error) {
	out := &CreateAccount{Memo: p.AccountMemo, MaxAutomaticTokenAssociations: DefaultMaxAutomaticTokenAssociations}

	var err error
	if p.PublicKey != "" {
		out.Key, err = ParsePublicKey(p.PublicKey)
	} else {
		out.Key, err = r.DefaultPublicKey(ctx)
	}
	if err != nil {
		return nil, err
	}

	if p.InitialBalance != nil {
		out.InitialTinybars, err = HbarToTinybars(p.InitialBalance.Decimal)
		if err != nil {
			return nil, describeAmount("initialBalance", err)
		}
	}
	if p.MaxAutomaticTokenAssociations != nil {
		out.MaxAutomaticTokenAssociations = *p.MaxAutomaticTokenAssociations
	}
	return out, nil
}

// UpdateAccount is the normalised form of UpdateAccountParams.
type UpdateAccount struct {
	AccountID                     hedera.AccountID
	MaxAutomaticTokenAssociations *int32
	StakedAccountID               *hedera.AccountID
	DeclineStakingReward          *bool
	Memo                          *string
}

// NormaliseUpdateAccount requires at least one change.
func NormaliseUpdateAccount(p UpdateAccountParams, r *Resolver) (*UpdateAccount, error) {
	account, err := r.Account(p.AccountID)
	if err != nil {
		return nil, err
	}
	out := &UpdateAccount{
		AccountID:                     account,
		MaxAutomaticTokenAssociations: p.MaxAutomaticTokenAssociations,
		DeclineStakingReward:          p.DeclineStakingReward,
		Memo:                          p.AccountMemo,
	}
	if p.StakedAccountID != "" {
		staked, err := ParseAccountID(p.StakedAccountID)
		if err != nil {
			return nil, err
		}
		out.StakedAccountID = &staked
	}
	if out.MaxAutomaticTokenAssociations == nil && out.StakedAccountID == nil &&
		out.DeclineStakingReward == nil && out.Memo == nil {
		return nil, invalid("nothing to update")
	}
	return out, nil
}

// DeleteAccount is the normalised form of DeleteAccountParams.
type DeleteAccount struct {
	AccountID         hedera.AccountID
	TransferAccountID hedera.AccountID
}

// NormaliseDeleteAccount defaults the beneficiary to the acting account.
func NormaliseDeleteAccount(p DeleteAccountParams, r *Resolver) (*DeleteAccount, error) {
	account, err := ParseAccountID(p.AccountID)
	if err != nil {
		return nil, err
	}
	transfer, err := r.Account(p.TransferAccountID)
	if err != nil {
		return nil, err
	}
	if transfer == account {
		return nil, invalid("transferAccountId must differ from the deleted account")
	}
	return &DeleteAccount{AccountID: account, TransferAccountID: transfer}, nil
}

// HbarString renders tinybars as an HBAR amount.
func HbarString(tinybars int64) string {
	return ToDisplayUnits(tinybars, HbarDecimals).String() + " HBAR"
}

// DisplayString renders base units with decimals.
func DisplayString(base int64, decimals int32) string {
	return decimal.New(base, -decimals).String()
}
