// Package dispatch finishes a built SDK transaction according to the toolkit
// mode: execute it with the operator key, or freeze it for the acting account
// and return its bytes.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
)

// Transaction is the subset of an SDK transaction the dispatcher needs.
type Transaction[T any] interface {
	Execute(client *hedera.Client) (hedera.TransactionResponse, error)
	SetTransactionID(id hedera.TransactionID) T
	SetNodeAccountIDs(ids []hedera.AccountID) T
	FreezeWith(client *hedera.Client) (T, error)
	ToBytes() ([]byte, error)
}

// PostProcess turns an executed transaction into a human message.
type PostProcess func(raw *RawResponse) string

// Bytes is the payload returned in returnBytes mode.
type Bytes struct {
	Bytes         []byte `json:"bytes"`
	TransactionID string `json:"transactionId"`
}

type options struct {
	withRecord bool
	nodeIDs    []hedera.AccountID
}

// Option adjusts a single dispatch.
type Option func(*options)

// WithRecord also fetches the transaction record, needed for contract call
// results.
func WithRecord() Option {
	return func(o *options) { o.withRecord = true }
}

// WithNodeAccountIDs pins the nodes a returnBytes transaction is frozen for.
func WithNodeAccountIDs(ids ...hedera.AccountID) Option {
	return func(o *options) { o.nodeIDs = append(o.nodeIDs, ids...) }
}

// Handle dispatches tx according to rt.Context.Mode.
func Handle[T Transaction[T]](ctx context.Context, rt *kit.Runtime, tx T, post PostProcess, opts ...Option) (*kit.Result, error) {
	if rt == nil || rt.Client == nil {
		return nil, errors.New("ledger client is not configured")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if rt.Context.EffectiveMode() == kit.ModeReturnBytes {
		return returnBytes(rt, tx, o)
	}
	return execute(ctx, rt, tx, post, o)
}

func returnBytes[T Transaction[T]](rt *kit.Runtime, tx T, o options) (*kit.Result, error) {
	if rt.Context.AccountID == "" {
		return nil, kit.ErrAccountRequired
	}
	account, err := hedera.AccountIDFromString(rt.Context.AccountID)
	if err != nil {
		return nil, fmt.Errorf("invalid context account %q: %w", rt.Context.AccountID, err)
	}

	txID := hedera.TransactionIDGenerate(account)
	tx.SetTransactionID(txID)
	if len(o.nodeIDs) > 0 {
		tx.SetNodeAccountIDs(o.nodeIDs)
	}
	frozen, err := tx.FreezeWith(rt.Client)
	if err != nil {
		return nil, fmt.Errorf("freeze transaction: %w", err)
	}
	raw, err := frozen.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	rt.Log().Info("transaction prepared for wallet signing",
		"transaction_id", txID.String(),
		"account", rt.Context.AccountID,
		"size", len(raw),
	)
	return &kit.Result{
		HumanMessage: fmt.Sprintf("Transaction %s is ready. Sign and submit it with your wallet.", txID.String()),
		Raw:          &Bytes{Bytes: raw, TransactionID: txID.String()},
	}, nil
}

func execute[T Transaction[T]](ctx context.Context, rt *kit.Runtime, tx T, post PostProcess, o options) (*kit.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	submitter := rt.Submitter
	if submitter == nil {
		submitter = NetworkSubmitter{}
	}

	exec, err := submitter.Submit(ctx, rt.Client, tx, o.withRecord)
	if err != nil {
		return nil, err
	}
	raw := NewRawResponse(exec)
	rt.Log().Info("transaction executed",
		"transaction_id", raw.TransactionID,
		"status", raw.Status,
	)

	message := ""
	if post != nil {
		message = post(raw)
	}
	if message == "" {
		message = DefaultMessage(raw)
	}
	return &kit.Result{HumanMessage: message, Raw: raw}, nil
}

// DefaultMessage reports the status and transaction id.
func DefaultMessage(raw *RawResponse) string {
	return fmt.Sprintf("Transaction %s finished with status %s.", raw.TransactionID, raw.Status)
}
