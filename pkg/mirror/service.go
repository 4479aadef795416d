package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Service is the read side of the ledger used by tools and normalisers.
type Service interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountHbarBalance(ctx context.Context, accountID string) (int64, error)
	GetAccountTokenBalances(ctx context.Context, accountID, tokenID string) ([]TokenBalance, error)
	GetTokenInfo(ctx context.Context, tokenID string) (*TokenInfo, error)
	GetTopicInfo(ctx context.Context, topicID string) (*TopicInfo, error)
	GetTopicMessages(ctx context.Context, query TopicMessagesQuery) ([]TopicMessage, error)
	GetTransactionRecord(ctx context.Context, transactionID string, nonce *int) ([]Transaction, error)
	GetExchangeRate(ctx context.Context, timestamp string) (*ExchangeRate, error)
	GetPendingAirdrops(ctx context.Context, accountID string) ([]PendingAirdrop, error)
	GetScheduleInfo(ctx context.Context, scheduleID string) (*ScheduleInfo, error)
	GetContractInfo(ctx context.Context, contractID string) (*ContractInfo, error)
}

var _ Service = (*Client)(nil)

// GetAccount fetches an account by id, alias or EVM address.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	if err := c.getJSON(ctx, c.endpoint(nil, "accounts", accountID), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountHbarBalance returns the balance in tinybars.
func (c *Client) GetAccountHbarBalance(ctx context.Context, accountID string) (int64, error) {
	account, err := c.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance.Balance, nil
}

// GetAccountTokenBalances lists token relationships of an account, optionally
// narrowed to one token.
func (c *Client) GetAccountTokenBalances(ctx context.Context, accountID, tokenID string) ([]TokenBalance, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageLimit))
	if tokenID != "" {
		query.Set("token.id", tokenID)
	}
	return paginate[TokenBalance](ctx, c, c.endpoint(query, "accounts", accountID, "tokens"), "tokens", 0)
}

// GetTokenInfo returns token metadata. Results are cached when a cache is
// configured.
func (c *Client) GetTokenInfo(ctx context.Context, tokenID string) (*TokenInfo, error) {
	key := c.cacheKey("token", tokenID)
	if c.cache != nil {
		if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var cached TokenInfo
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	var info TokenInfo
	if err := c.getJSON(ctx, c.endpoint(nil, "tokens", tokenID), &info); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
				c.logger.Warn("mirror cache write failed", "key", key, "error", err)
			}
		}
	}
	return &info, nil
}

// GetTopicInfo returns topic metadata.
func (c *Client) GetTopicInfo(ctx context.Context, topicID string) (*TopicInfo, error) {
	var info TopicInfo
	if err := c.getJSON(ctx, c.endpoint(nil, "topics", topicID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetTopicMessages returns messages of a topic in the requested window.
func (c *Client) GetTopicMessages(ctx context.Context, q TopicMessagesQuery) ([]TopicMessage, error) {
	if strings.TrimSpace(q.TopicID) == "" {
		return nil, fmt.Errorf("mirror: topic id is required")
	}
	pageSize := q.Limit
	if pageSize <= 0 || pageSize > defaultPageLimit {
		pageSize = defaultPageLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize))
	order := strings.ToLower(q.Order)
	if order != "asc" && order != "desc" {
		order = "asc"
	}
	query.Set("order", order)
	if q.Lower != "" {
		query.Add("timestamp", "gte:"+q.Lower)
	}
	if q.Upper != "" {
		query.Add("timestamp", "lte:"+q.Upper)
	}
	return paginate[TopicMessage](ctx, c, c.endpoint(query, "topics", q.TopicID, "messages"), "messages", q.Limit)
}

// GetTransactionRecord looks a transaction up by mirror-style id
// (0.0.5-1700000000-000000001). SDK-style ids are reshaped first.
func (c *Client) GetTransactionRecord(ctx context.Context, transactionID string, nonce *int) ([]Transaction, error) {
	id, err := NormaliseTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	var query url.Values
	if nonce != nil {
		query = url.Values{"nonce": []string{strconv.Itoa(*nonce)}}
	}
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.getJSON(ctx, c.endpoint(query, "transactions", id), &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// GetExchangeRate returns the HBAR/USD rate, at timestamp when given.
func (c *Client) GetExchangeRate(ctx context.Context, timestamp string) (*ExchangeRate, error) {
	var query url.Values
	if timestamp != "" {
		query = url.Values{"timestamp": []string{timestamp}}
	}
	var rate ExchangeRate
	if err := c.getJSON(ctx, c.endpoint(query, "network", "exchangerate"), &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

// GetPendingAirdrops lists airdrops waiting for accountID to claim.
func (c *Client) GetPendingAirdrops(ctx context.Context, accountID string) ([]PendingAirdrop, error) {
	query := url.Values{"limit": []string{strconv.Itoa(defaultPageLimit)}}
	return paginate[PendingAirdrop](ctx, c, c.endpoint(query, "accounts", accountID, "airdrops", "pending"), "airdrops", 0)
}

// GetScheduleInfo returns a schedule entity.
func (c *Client) GetScheduleInfo(ctx context.Context, scheduleID string) (*ScheduleInfo, error) {
	var info ScheduleInfo
	if err := c.getJSON(ctx, c.endpoint(nil, "schedules", scheduleID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetContractInfo returns a contract by id or EVM address.
func (c *Client) GetContractInfo(ctx context.Context, contractID string) (*ContractInfo, error) {
	var info ContractInfo
	if err := c.getJSON(ctx, c.endpoint(nil, "contracts", contractID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) cacheKey(kind, id string) string {
	return "mirror:" + c.base.Host + ":" + kind + ":" + id
}
