package blockfrost

import (
	"encoding/json"
	"time"
)

// Block is the subset of the Blockfrost block object the indexer reads.
type Block struct {
	Time          int64  `json:"time"`
	Height        int64  `json:"height"`
	Hash          string `json:"hash"`
	Slot          int64  `json:"slot"`
	Epoch         int64  `json:"epoch"`
	TxCount       int    `json:"tx_count"`
	Confirmations int64  `json:"confirmations"`
}

// AddressTransaction is one entry of GET /addresses/{address}/transactions.
type AddressTransaction struct {
	TxHash      string `json:"tx_hash"`
	TxIndex     int    `json:"tx_index"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// Transaction is the subset of GET /txs/{hash}.
type Transaction struct {
	Hash        string `json:"hash"`
	Block       string `json:"block"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
	Slot        int64  `json:"slot"`
	Index       int    `json:"index"`
	Fees        string `json:"fees"`
}

// MetadataEntry is one element of GET /txs/{hash}/metadata. Labels are
// decimal strings on the wire.
type MetadataEntry struct {
	Label        string          `json:"label"`
	JSONMetadata json.RawMessage `json:"json_metadata"`
}

// TransactionDetail joins a transaction with its metadata entries.
type TransactionDetail struct {
	Hash        string
	Block       string
	BlockHeight int64
	BlockTime   time.Time
	Slot        int64
	Metadata    []MetadataEntry
}

// Confirmed reports whether the ledger has placed the transaction in a block.
func (d *TransactionDetail) Confirmed() bool {
	return d != nil && d.Block != "" && d.BlockHeight > 0
}

// RawMetadata re-encodes the metadata entries for storage.
func (d *TransactionDetail) RawMetadata() string {
	if d == nil || len(d.Metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(d.Metadata)
	if err != nil {
		return ""
	}
	return string(raw)
}

type healthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// errorResponse is the Blockfrost error body.
type errorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (e *errorResponse) isEmpty() bool {
	return e == nil || e.StatusCode == 0
}
