package dispatch

import (
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"
)

// ScheduleOptions are the ScheduleCreate fields a tool may set on top of the
// inner transaction.
type ScheduleOptions struct {
	AdminKey       hedera.Key
	PayerAccountID *hedera.AccountID
	ExpirationTime *time.Time
	WaitForExpiry  bool
	Memo           string
}

// ApplySchedule copies opts onto a ScheduleCreate transaction that already
// carries its inner transaction.
func ApplySchedule(tx *hedera.ScheduleCreateTransaction, opts ScheduleOptions) *hedera.ScheduleCreateTransaction {
	if opts.AdminKey != nil {
		tx.SetAdminKey(opts.AdminKey)
	}
	if opts.PayerAccountID != nil {
		tx.SetPayerAccountID(*opts.PayerAccountID)
	}
	if opts.ExpirationTime != nil {
		tx.SetExpirationTime(*opts.ExpirationTime)
	}
	if opts.WaitForExpiry {
		tx.SetWaitForExpiry(true)
	}
	if opts.Memo != "" {
		tx.SetScheduleMemo(opts.Memo)
	}
	return tx
}

// ScheduledMessage reports a created schedule.
func ScheduledMessage(raw *RawResponse) string {
	msg := "Scheduled transaction created successfully. Schedule ID: " + raw.ScheduleID
	if raw.ScheduledTransactionID != "" {
		msg += ", scheduled transaction ID: " + raw.ScheduledTransactionID
	}
	return msg + "."
}
