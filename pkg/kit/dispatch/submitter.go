package dispatch

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-go/v2"

	"hedera-agent-kit/pkg/kit"
)

// NetworkSubmitter executes transactions against the ledger and waits for
// their receipt.
type NetworkSubmitter struct{}

var _ kit.Submitter = NetworkSubmitter{}

// Submit executes tx, then fetches the receipt and, when asked, the record.
func (NetworkSubmitter) Submit(ctx context.Context, client *hedera.Client, tx kit.Executable, withRecord bool) (*kit.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := tx.Execute(client)
	if err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}
	receipt, err := resp.GetReceipt(client)
	if err != nil {
		return nil, fmt.Errorf("receipt for %s: %w", resp.TransactionID.String(), err)
	}

	exec := &kit.Execution{TransactionID: resp.TransactionID, Receipt: receipt}
	if withRecord {
		record, err := resp.GetRecord(client)
		if err != nil {
			return nil, fmt.Errorf("record for %s: %w", resp.TransactionID.String(), err)
		}
		if record.CallResult != nil {
			exec.CallResult = record.CallResult.ContractCallResult
		}
	}
	return exec, nil
}
