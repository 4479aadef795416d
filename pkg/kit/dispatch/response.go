package dispatch

import (
	"encoding/hex"

	"hedera-agent-kit/pkg/kit"
)

// RawResponse is the machine readable outcome of an executed transaction.
type RawResponse struct {
	Status                 string  `json:"status"`
	AccountID              string  `json:"accountId,omitempty"`
	TokenID                string  `json:"tokenId,omitempty"`
	TopicID                string  `json:"topicId,omitempty"`
	ScheduleID             string  `json:"scheduleId,omitempty"`
	ContractID             string  `json:"contractId,omitempty"`
	TransactionID          string  `json:"transactionId"`
	TopicSequenceNumber    uint64  `json:"topicSequenceNumber,omitempty"`
	SerialNumbers          []int64 `json:"serialNumbers,omitempty"`
	ScheduledTransactionID string  `json:"scheduledTransactionId,omitempty"`
	ContractCallResult     []byte  `json:"-"`
	ContractCallResultHex  string  `json:"contractCallResult,omitempty"`
}

// NewRawResponse flattens an execution into a RawResponse.
func NewRawResponse(exec *kit.Execution) *RawResponse {
	r := exec.Receipt
	raw := &RawResponse{
		Status:              r.Status.String(),
		TransactionID:       exec.TransactionID.String(),
		TopicSequenceNumber: r.TopicSequenceNumber,
		SerialNumbers:       r.SerialNumbers,
		ContractCallResult:  exec.CallResult,
	}
	if r.AccountID != nil {
		raw.AccountID = r.AccountID.String()
	}
	if r.TokenID != nil {
		raw.TokenID = r.TokenID.String()
	}
	if r.TopicID != nil {
		raw.TopicID = r.TopicID.String()
	}
	if r.ScheduleID != nil {
		raw.ScheduleID = r.ScheduleID.String()
	}
	if r.ContractID != nil {
		raw.ContractID = r.ContractID.String()
	}
	if r.ScheduledTransactionID != nil {
		raw.ScheduledTransactionID = r.ScheduledTransactionID.String()
	}
	if len(exec.CallResult) > 0 {
		raw.ContractCallResultHex = "0x" + hex.EncodeToString(exec.CallResult)
	}
	return raw
}
