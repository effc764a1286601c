// Package chain talks to the Flow access node REST API and an account
// transaction indexer.
package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	apperrors "github.com/moment-tracker/internal/errors"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/retry"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 32 << 20

// Config configures the chain client
type Config struct {
	AccessNodeURL     string
	IndexerURL        string
	Timeout           time.Duration
	Retry             *retry.RetryConfig
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	MaxPages          int
}

// RawEvent is one event as emitted on chain. Payload is nil when the payload
// could not be decoded; PayloadError then says why.
type RawEvent struct {
	Type             string                 `json:"type"`
	TransactionID    string                 `json:"transactionId"`
	TransactionIndex int                    `json:"transactionIndex"`
	EventIndex       int                    `json:"eventIndex"`
	BlockHeight      uint64                 `json:"blockHeight"`
	BlockTimestamp   time.Time              `json:"blockTimestamp"`
	Payload          map[string]interface{} `json:"payload,omitempty"`
	PayloadError     string                 `json:"payloadError,omitempty"`
}

// RawTransaction is one account transaction with its events
type RawTransaction struct {
	ID          string     `json:"id"`
	BlockHeight uint64     `json:"blockHeight"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      string     `json:"status,omitempty"`
	Events      []RawEvent `json:"events"`
}

// Client is a Flow REST client with pacing and bounded retries
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a chain client
func NewClient(cfg Config) *Client {
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	cfg.AccessNodeURL = strings.TrimRight(cfg.AccessNodeURL, "/")
	cfg.IndexerURL = strings.TrimRight(cfg.IndexerURL, "/")

	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

// ExecuteScript runs a read-only Cadence script against the latest sealed
// block and returns its decoded result.
func (c *Client) ExecuteScript(ctx context.Context, script string, args []Argument) (interface{}, error) {
	encodedArgs := make([]string, 0, len(args))
	for _, arg := range args {
		enc, err := encodeArgument(arg)
		if err != nil {
			return nil, err
		}
		encodedArgs = append(encodedArgs, enc)
	}

	body, err := json.Marshal(map[string]interface{}{
		"script":    base64.StdEncoding.EncodeToString([]byte(script)),
		"arguments": encodedArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode script request: %w", err)
	}

	data, found, err := c.do(ctx, "execute_script", http.MethodPost, c.cfg.AccessNodeURL+"/v1/scripts?block_height=sealed", body, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("unexpected script response: %w", err)
	}
	return DecodeBase64Value(encoded)
}

type blockHeaderResponse struct {
	Header struct {
		ID        string `json:"id"`
		Height    string `json:"height"`
		Timestamp string `json:"timestamp"`
	} `json:"header"`
}

// GetLatestBlockHeight returns the latest sealed block height
func (c *Client) GetLatestBlockHeight(ctx context.Context) (uint64, error) {
	data, _, err := c.do(ctx, "latest_block", http.MethodGet, c.cfg.AccessNodeURL+"/v1/blocks?height=sealed", nil, false)
	if err != nil {
		return 0, err
	}

	var blocks []blockHeaderResponse
	if err := json.Unmarshal(data, &blocks); err != nil {
		return 0, fmt.Errorf("failed to parse block response: %w", err)
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("access node returned no sealed block")
	}
	return strconv.ParseUint(blocks[0].Header.Height, 10, 64)
}

type eventsBlockResponse struct {
	BlockID        string              `json:"block_id"`
	BlockHeight    string              `json:"block_height"`
	BlockTimestamp string              `json:"block_timestamp"`
	Events         []eventItemResponse `json:"events"`
}

type eventItemResponse struct {
	Type             string              `json:"type"`
	TransactionID    string              `json:"transaction_id"`
	TransactionIndex string              `json:"transaction_index"`
	EventIndex       string              `json:"event_index"`
	Payload          jsoniter.RawMessage `json:"payload"`
}

// GetEventsByType returns every event of eventType sealed between startHeight
// and endHeight inclusive. An empty range yields an empty slice.
func (c *Client) GetEventsByType(ctx context.Context, eventType string, startHeight, endHeight uint64) ([]RawEvent, error) {
	if endHeight < startHeight {
		return []RawEvent{}, nil
	}

	q := url.Values{}
	q.Set("type", eventType)
	q.Set("start_height", strconv.FormatUint(startHeight, 10))
	q.Set("end_height", strconv.FormatUint(endHeight, 10))

	data, found, err := c.do(ctx, "events_by_type", http.MethodGet, c.cfg.AccessNodeURL+"/v1/events?"+q.Encode(), nil, true)
	if err != nil {
		return nil, err
	}
	events := []RawEvent{}
	if !found || len(bytes.TrimSpace(data)) == 0 {
		return events, nil
	}

	var blocks []eventsBlockResponse
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("failed to parse events response: %w", err)
	}

	for _, block := range blocks {
		height, _ := strconv.ParseUint(block.BlockHeight, 10, 64)
		ts := parseTime(block.BlockTimestamp)
		for _, item := range block.Events {
			ev := RawEvent{
				Type:             item.Type,
				TransactionID:    item.TransactionID,
				TransactionIndex: atoi(item.TransactionIndex),
				EventIndex:       atoi(item.EventIndex),
				BlockHeight:      height,
				BlockTimestamp:   ts,
			}
			ev.Payload, ev.PayloadError = decodePayload(item.Payload)
			events = append(events, ev)
		}
	}
	return events, nil
}

type accountTransactionsResponse struct {
	Transactions []accountTransactionItem `json:"transactions"`
	NextOffset   *int                     `json:"next_offset"`
}

type accountTransactionItem struct {
	ID          string                    `json:"id"`
	BlockHeight flexString                `json:"block_height"`
	Timestamp   string                    `json:"timestamp"`
	Status      string                    `json:"status"`
	Events      []accountTransactionEvent `json:"events"`
}

type accountTransactionEvent struct {
	Type       string              `json:"type"`
	EventIndex flexString          `json:"event_index"`
	Payload    jsoniter.RawMessage `json:"payload"`
}

// flexString accepts a JSON number or a quoted number
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	*f = flexString(strings.Trim(string(b), `"`))
	return nil
}

// GetAccountTransactions returns the full transaction history of an account
// from the indexer, following pages until exhausted. An unknown account or an
// empty history yields an empty slice.
func (c *Client) GetAccountTransactions(ctx context.Context, address string) ([]RawTransaction, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}
	if c.cfg.IndexerURL == "" {
		return nil, fmt.Errorf("indexer URL is not configured")
	}

	logger := logging.FromContext(ctx).WithField("address", addr)
	txs := []RawTransaction{}
	offset := 0

	for page := 0; page < c.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.cfg.PageSize))
		q.Set("offset", strconv.Itoa(offset))
		endpoint := fmt.Sprintf("%s/accounts/%s/transactions?%s", c.cfg.IndexerURL, addr, q.Encode())

		data, found, err := c.do(ctx, "account_transactions", http.MethodGet, endpoint, nil, true)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}

		var resp accountTransactionsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse account transactions: %w", err)
		}

		for _, item := range resp.Transactions {
			txs = append(txs, convertAccountTransaction(item))
		}

		if len(resp.Transactions) < c.cfg.PageSize {
			break
		}
		if resp.NextOffset != nil && *resp.NextOffset > offset {
			offset = *resp.NextOffset
		} else {
			offset += len(resp.Transactions)
		}
		if page == c.cfg.MaxPages-1 {
			logger.WithField("pages", c.cfg.MaxPages).Warn("Account history truncated at page limit")
		}
	}

	logger.WithField("transactions", len(txs)).Debug("Fetched account transactions")
	return txs, nil
}

func convertAccountTransaction(item accountTransactionItem) RawTransaction {
	height, _ := strconv.ParseUint(string(item.BlockHeight), 10, 64)
	tx := RawTransaction{
		ID:          item.ID,
		BlockHeight: height,
		Timestamp:   parseTime(item.Timestamp),
		Status:      item.Status,
		Events:      make([]RawEvent, 0, len(item.Events)),
	}
	for _, e := range item.Events {
		ev := RawEvent{
			Type:           e.Type,
			TransactionID:  item.ID,
			EventIndex:     atoi(string(e.EventIndex)),
			BlockHeight:    height,
			BlockTimestamp: tx.Timestamp,
		}
		ev.Payload, ev.PayloadError = decodePayload(e.Payload)
		tx.Events = append(tx.Events, ev)
	}
	return tx
}

// decodePayload accepts a base64 JSON-Cadence string, an inline JSON-Cadence
// object or an already flattened object.
func decodePayload(raw jsoniter.RawMessage) (map[string]interface{}, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, "empty payload"
	}

	var decoded interface{}
	var err error
	switch trimmed[0] {
	case '"':
		var encoded string
		if err = json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, err.Error()
		}
		decoded, err = DecodeBase64Value(encoded)
	case '{':
		var envelope map[string]interface{}
		if err = json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err.Error()
		}
		if _, typed := envelope["type"].(string); typed && envelope["value"] != nil {
			decoded, err = DecodeValue(trimmed)
		} else {
			decoded = envelope
		}
	default:
		return nil, "payload is not an object"
	}
	if err != nil {
		return nil, err.Error()
	}

	fields, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Sprintf("payload decoded to %T", decoded)
	}
	return fields, ""
}

// statusError is a failed HTTP exchange; status 0 means the request never got a response
type statusError struct {
	status int
	body   string
	err    error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("request failed: %v", e.err)
	}
	return fmt.Sprintf("HTTP error: %d - %s", e.status, e.body)
}

func (e *statusError) Unwrap() error { return e.err }

func isRetryableStatus(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return false
	}
	return se.status == 0 || se.status == http.StatusTooManyRequests || se.status >= 500
}

// do performs one logical request with pacing, per-attempt timeout and
// bounded retry. found is false when allowNotFound is set and the server
// answered 404.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, allowNotFound bool) ([]byte, bool, error) {
	var (
		payload    []byte
		found      = true
		lastStatus int
	)

	cfg := *c.cfg.Retry
	cfg.ShouldRetry = isRetryableStatus
	cfg.OnRetry = func(int, error) {
		metrics.ChainRetries.WithLabelValues(op).Inc()
	}

	result := retry.WithExponentialBackoff(ctx, &cfg, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastStatus = 0
			metrics.ChainRequests.WithLabelValues(op, "error").Inc()
			return &statusError{err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		lastStatus = resp.StatusCode
		metrics.ChainRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		if err != nil {
			return &statusError{status: resp.StatusCode, err: err}
		}

		if resp.StatusCode == http.StatusNotFound && allowNotFound {
			found = false
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{status: resp.StatusCode, body: truncate(string(data), 256)}
		}

		payload = data
		return nil
	})

	if !result.Success {
		return nil, false, apperrors.NewChainQueryError(op, lastStatus, result.Attempts, result.LastError)
	}
	return payload, found, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
