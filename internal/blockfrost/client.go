package blockfrost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chainnotes-sync-server/internal/logging"

	"github.com/go-resty/resty/v2"
)

const (
	NetworkMainnet = "mainnet"
	NetworkPreprod = "preprod"
	NetworkPreview = "preview"
)

var networkURLs = map[string]string{
	NetworkMainnet: "https://cardano-mainnet.blockfrost.io/api/v0",
	NetworkPreprod: "https://cardano-preprod.blockfrost.io/api/v0",
	NetworkPreview: "https://cardano-preview.blockfrost.io/api/v0",
}

// BaseURLFor returns the public Blockfrost endpoint for a Cardano network.
func BaseURLFor(network string) (string, bool) {
	u, ok := networkURLs[strings.ToLower(network)]
	return u, ok
}

type Config struct {
	ProjectID  string
	Network    string
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client is a read-only Blockfrost API client.
type Client struct {
	logger     *slog.Logger
	httpClient *resty.Client
	config     Config
}

func New(logger *slog.Logger, httpClient *resty.Client, config Config) (*Client, error) {
	logger = logging.Child(logger, "blockfrost")

	baseURL := config.BaseURL
	if baseURL == "" {
		u, ok := BaseURLFor(config.Network)
		if !ok {
			return nil, fmt.Errorf("unknown blockfrost network %q", config.Network)
		}
		baseURL = u
	}
	config.BaseURL = strings.TrimRight(baseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient = httpClient.
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("project_id", config.ProjectID).
		SetHeader("Accept", "application/json").
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return false
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}).
		SetLogger(logging.RestyAdapter(logger)).
		SetDebug(logging.IsDebug(logger))

	return &Client{
		logger:     logger,
		httpClient: httpClient,
		config:     config,
	}, nil
}

func (c *Client) Network() string { return c.config.Network }

// Configured reports whether the client has credentials to talk to Blockfrost.
func (c *Client) Configured() bool { return c.config.ProjectID != "" }

func (c *Client) LatestBlock(ctx context.Context) (*Block, error) {
	const endpoint = "/blocks/latest"

	block := &Block{}
	if err := c.get(ctx, endpoint, block, nil, nil); err != nil {
		return nil, err
	}
	return block, nil
}

// BlockTransactions lists the hashes of the transactions in a block,
// addressed by hash or height.
func (c *Client) BlockTransactions(ctx context.Context, hashOrHeight string, page int) ([]string, error) {
	const endpoint = "/blocks/{hashOrHeight}/txs"

	var hashes []string
	err := c.get(ctx, endpoint, &hashes,
		map[string]string{"hashOrHeight": hashOrHeight},
		map[string]string{"page": strconv.Itoa(max(page, 1))},
	)
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// AddressTransactions returns one page of an address's history, newest first.
// An address the ledger has never seen yields an empty page.
func (c *Client) AddressTransactions(ctx context.Context, address string, page, count int) ([]AddressTransaction, error) {
	const endpoint = "/addresses/{address}/transactions"

	if count <= 0 || count > 100 {
		count = 100
	}

	var txs []AddressTransaction
	err := c.get(ctx, endpoint, &txs,
		map[string]string{"address": address},
		map[string]string{
			"page":  strconv.Itoa(max(page, 1)),
			"count": strconv.Itoa(count),
			"order": "desc",
		},
	)
	if IsNotFound(err) {
		return []AddressTransaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// Transaction returns (nil, nil) when the ledger does not know the hash yet.
func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	const endpoint = "/txs/{hash}"

	tx := &Transaction{}
	err := c.get(ctx, endpoint, tx, map[string]string{"hash": hash}, nil)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *Client) TransactionMetadata(ctx context.Context, hash string) ([]MetadataEntry, error) {
	const endpoint = "/txs/{hash}/metadata"

	var entries []MetadataEntry
	err := c.get(ctx, endpoint, &entries, map[string]string{"hash": hash}, nil)
	if IsNotFound(err) {
		return []MetadataEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// TransactionDetail returns (nil, nil) when the transaction is not visible.
func (c *Client) TransactionDetail(ctx context.Context, hash string) (*TransactionDetail, error) {
	tx, err := c.Transaction(ctx, hash)
	if err != nil || tx == nil {
		return nil, err
	}

	entries, err := c.TransactionMetadata(ctx, hash)
	if err != nil {
		return nil, err
	}

	return &TransactionDetail{
		Hash:        tx.Hash,
		Block:       tx.Block,
		BlockHeight: tx.BlockHeight,
		BlockTime:   time.Unix(tx.BlockTime, 0).UTC(),
		Slot:        tx.Slot,
		Metadata:    entries,
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	const endpoint = "/health"

	health := &healthResponse{}
	if err := c.get(ctx, endpoint, health, nil, nil); err != nil {
		return err
	}
	if !health.IsHealthy {
		return &Error{StatusCode: http.StatusServiceUnavailable, Endpoint: endpoint, Message: "blockfrost reports unhealthy"}
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, result interface{}, pathParams, queryParams map[string]string) error {
	apiErr := &errorResponse{}
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)

	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if queryParams != nil {
		req.SetQueryParams(queryParams)
	}

	response, err := req.Get(endpoint)
	if err != nil {
		return networkError(endpoint, err)
	}

	switch code := response.StatusCode(); {
	case code == http.StatusOK:
		return nil
	case code == http.StatusForbidden:
		c.logger.Warn("Blockfrost rejected project id", slog.String("endpoint", endpoint))
		return apiError(endpoint, code, apiErr)
	default:
		return apiError(endpoint, code, apiErr)
	}
}
