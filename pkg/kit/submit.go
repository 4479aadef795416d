package kit

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/hashgraph/hedera-sdk-go/v2"
)

var (
	// ErrUnknownTool is returned when a method is not part of the toolkit.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrAccountRequired is returned when returnBytes mode has no acting account.
	ErrAccountRequired = errors.New("context account id is required in returnBytes mode")
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Executable is any SDK transaction that can be sent to the network.
type Executable interface {
	Execute(client *hedera.Client) (hedera.TransactionResponse, error)
}

// Execution is the outcome of a submitted transaction.
type Execution struct {
	TransactionID hedera.TransactionID
	Receipt       hedera.TransactionReceipt
	// CallResult holds the raw contract call result when the record was
	// requested for a contract transaction.
	CallResult []byte
}

// Submitter sends frozen or unfrozen transactions to the network and waits
// for their outcome.
type Submitter interface {
	Submit(ctx context.Context, client *hedera.Client, tx Executable, withRecord bool) (*Execution, error)
}
