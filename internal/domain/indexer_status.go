package domain

import "time"

const (
	LedgerAvailable   = "AVAILABLE"
	LedgerUnavailable = "UNAVAILABLE"
)

type IndexerStatus struct {
	Enabled                  bool       `json:"enabled"`
	Running                  bool       `json:"running"`
	Network                  string     `json:"network"`
	CurrentBlockHeight       int64      `json:"current_block_height"`
	LatestIndexedBlock       int64      `json:"latest_indexed_block"`
	BlocksBehind             int64      `json:"blocks_behind"`
	LastIndexedAt            *time.Time `json:"last_indexed_at,omitempty"`
	TotalTransactionsIndexed int64      `json:"total_transactions_indexed"`
	PendingTransactions      int64      `json:"pending_transactions"`
	ConfirmedTransactions    int64      `json:"confirmed_transactions"`
	FailedTransactions       int64      `json:"failed_transactions"`
	MonitoredAddressesCount  int        `json:"monitored_addresses_count"`
	BlockfrostStatus         string     `json:"blockfrost_status"`
	StartedAt                *time.Time `json:"started_at,omitempty"`
	ErrorMessage             string     `json:"error_message,omitempty"`
	Uptime                   string     `json:"uptime,omitempty"`
}

// SweepResult summarises one pass of the transaction sync worker.
type SweepResult struct {
	Checked   int  `json:"checked"`
	Confirmed int  `json:"confirmed"`
	Failed    int  `json:"failed"`
	Expired   int  `json:"expired"`
	Errors    int  `json:"errors"`
	Skipped   bool `json:"skipped,omitempty"`
}
