package mirror

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Links carries the pagination cursor returned by list endpoints.
type Links struct {
	Next *string `json:"next"`
}

// Key is a public key as rendered by the mirror node.
type Key struct {
	Type string `json:"_type"`
	Key  string `json:"key"`
}

// TokenBalance is a token holding of an account.
type TokenBalance struct {
	TokenID  string `json:"token_id"`
	Balance  int64  `json:"balance"`
	Decimals *int   `json:"decimals,omitempty"`
}

// Balance is the balance snapshot embedded in an account.
type Balance struct {
	Balance   int64          `json:"balance"`
	Timestamp string         `json:"timestamp"`
	Tokens    []TokenBalance `json:"tokens"`
}

// Account mirrors GET /accounts/{id}.
type Account struct {
	Account                       string  `json:"account"`
	Alias                         string  `json:"alias,omitempty"`
	EVMAddress                    string  `json:"evm_address"`
	Balance                       Balance `json:"balance"`
	Key                           *Key    `json:"key,omitempty"`
	Memo                          string  `json:"memo"`
	Deleted                       bool    `json:"deleted"`
	MaxAutomaticTokenAssociations int     `json:"max_automatic_token_associations"`
	StakedAccountID               *string `json:"staked_account_id,omitempty"`
	StakedNodeID                  *int64  `json:"staked_node_id,omitempty"`
	DeclineReward                 bool    `json:"decline_reward"`
	CreatedTimestamp              string  `json:"created_timestamp"`
	ExpiryTimestamp               string  `json:"expiry_timestamp"`
}

// TokenInfo mirrors GET /tokens/{id}. Supplies are decimal strings of base
// units.
type TokenInfo struct {
	TokenID           string `json:"token_id"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Decimals          string `json:"decimals"`
	TotalSupply       string `json:"total_supply"`
	MaxSupply         string `json:"max_supply"`
	InitialSupply     string `json:"initial_supply"`
	SupplyType        string `json:"supply_type"`
	Type              string `json:"type"`
	TreasuryAccountID string `json:"treasury_account_id"`
	Memo              string `json:"memo"`
	AdminKey          *Key   `json:"admin_key,omitempty"`
	SupplyKey         *Key   `json:"supply_key,omitempty"`
	Deleted           bool   `json:"deleted"`
	CreatedTimestamp  string `json:"created_timestamp"`
	PauseStatus       string `json:"pause_status"`
}

// DecimalPlaces parses the decimals field.
func (t *TokenInfo) DecimalPlaces() (int32, error) {
	if t == nil {
		return 0, fmt.Errorf("token info is nil")
	}
	raw := strings.TrimSpace(t.Decimals)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("token %s has invalid decimals %q: %w", t.TokenID, t.Decimals, err)
	}
	return int32(v), nil
}

// TopicInfo mirrors GET /topics/{id}.
type TopicInfo struct {
	TopicID          string `json:"topic_id"`
	Memo             string `json:"memo"`
	AdminKey         *Key   `json:"admin_key,omitempty"`
	SubmitKey        *Key   `json:"submit_key,omitempty"`
	AutoRenewAccount string `json:"auto_renew_account"`
	AutoRenewPeriod  int64  `json:"auto_renew_period"`
	CreatedTimestamp string `json:"created_timestamp"`
	Deleted          bool   `json:"deleted"`
}

// TopicMessage is one consensus message. Message is base64 encoded.
type TopicMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
	PayerAccountID     string `json:"payer_account_id"`
	RunningHash        string `json:"running_hash"`
	SequenceNumber     int64  `json:"sequence_number"`
	TopicID            string `json:"topic_id"`
}

// Text decodes the message body, returning the raw field when it is not
// valid base64.
func (m TopicMessage) Text() string {
	decoded, err := base64.StdEncoding.DecodeString(m.Message)
	if err != nil {
		return m.Message
	}
	return string(decoded)
}

// TopicMessagesQuery selects messages of a topic. Lower and Upper are mirror
// timestamps ("seconds.nanos"), both inclusive.
type TopicMessagesQuery struct {
	TopicID string
	Lower   string
	Upper   string
	Limit   int
	Order   string
}

// Transfer is an HBAR movement inside a transaction.
type Transfer struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

// TokenTransfer is a fungible token movement inside a transaction.
type TokenTransfer struct {
	TokenID    string `json:"token_id"`
	Account    string `json:"account"`
	Amount     int64  `json:"amount"`
	IsApproval bool   `json:"is_approval"`
}

// Transaction mirrors one entry of GET /transactions/{id}.
type Transaction struct {
	TransactionID       string          `json:"transaction_id"`
	ConsensusTimestamp  string          `json:"consensus_timestamp"`
	ValidStartTimestamp string          `json:"valid_start_timestamp"`
	Name                string          `json:"name"`
	Result              string          `json:"result"`
	ChargedTxFee        int64           `json:"charged_tx_fee"`
	MemoBase64          string          `json:"memo_base64"`
	EntityID            *string         `json:"entity_id,omitempty"`
	Node                string          `json:"node"`
	Nonce               int             `json:"nonce"`
	Scheduled           bool            `json:"scheduled"`
	Transfers           []Transfer      `json:"transfers"`
	TokenTransfers      []TokenTransfer `json:"token_transfers"`
}

// Memo decodes the transaction memo.
func (t Transaction) Memo() string {
	decoded, err := base64.StdEncoding.DecodeString(t.MemoBase64)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// Rate is an HBAR to US cent exchange rate.
type Rate struct {
	CentEquivalent int64 `json:"cent_equivalent"`
	HbarEquivalent int64 `json:"hbar_equivalent"`
	ExpirationTime int64 `json:"expiration_time"`
}

// USDPerHbar returns the rate as dollars per HBAR.
func (r Rate) USDPerHbar() float64 {
	if r.HbarEquivalent == 0 {
		return 0
	}
	return float64(r.CentEquivalent) / float64(r.HbarEquivalent) / 100
}

// ExchangeRate mirrors GET /network/exchangerate.
type ExchangeRate struct {
	CurrentRate Rate   `json:"current_rate"`
	NextRate    Rate   `json:"next_rate"`
	Timestamp   string `json:"timestamp"`
}

// TimestampRange is a validity window.
type TimestampRange struct {
	From string  `json:"from"`
	To   *string `json:"to"`
}

// PendingAirdrop is an airdrop waiting for the receiver to claim it.
type PendingAirdrop struct {
	Amount       int64          `json:"amount"`
	ReceiverID   string         `json:"receiver_id"`
	SenderID     string         `json:"sender_id"`
	SerialNumber *int64         `json:"serial_number,omitempty"`
	TokenID      string         `json:"token_id"`
	Timestamp    TimestampRange `json:"timestamp"`
}

// ScheduleSignature is a signature collected by a schedule.
type ScheduleSignature struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	PublicKeyPrefix    string `json:"public_key_prefix"`
	Signature          string `json:"signature"`
	Type               string `json:"type"`
}

// ScheduleInfo mirrors GET /schedules/{id}.
type ScheduleInfo struct {
	ScheduleID         string              `json:"schedule_id"`
	AdminKey           *Key                `json:"admin_key,omitempty"`
	CreatorAccountID   string              `json:"creator_account_id"`
	PayerAccountID     string              `json:"payer_account_id"`
	ConsensusTimestamp string              `json:"consensus_timestamp"`
	Deleted            bool                `json:"deleted"`
	ExecutedTimestamp  *string             `json:"executed_timestamp,omitempty"`
	ExpirationTime     *string             `json:"expiration_time,omitempty"`
	Memo               string              `json:"memo"`
	WaitForExpiry      bool                `json:"wait_for_expiry"`
	Signatures         []ScheduleSignature `json:"signatures"`
}

// ContractInfo mirrors GET /contracts/{id}.
type ContractInfo struct {
	ContractID       string `json:"contract_id"`
	EVMAddress       string `json:"evm_address"`
	AdminKey         *Key   `json:"admin_key,omitempty"`
	Memo             string `json:"memo"`
	FileID           string `json:"file_id"`
	CreatedTimestamp string `json:"created_timestamp"`
	Deleted          bool   `json:"deleted"`
}
