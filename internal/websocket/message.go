package websocket

import (
	"encoding/json"
	"time"

	"chainnotes-sync-server/internal/domain"
)

type MessageType string

const (
	TypeTransactionStatus MessageType = "transaction_status"
	TypeNoteUpdate        MessageType = "note_update"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
	TypeError             MessageType = "error"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type TransactionStatusPayload struct {
	TransactionID int64                    `json:"transaction_id"`
	NoteID        int64                    `json:"note_id"`
	Type          domain.TransactionType   `json:"type"`
	Status        domain.TransactionStatus `json:"status"`
	TxHash        string                   `json:"tx_hash,omitempty"`
	BlockHeight   *int64                   `json:"block_height,omitempty"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
}

type NoteUpdatePayload struct {
	NoteID       int64             `json:"note_id"`
	Title        string            `json:"title"`
	Status       domain.NoteStatus `json:"status,omitempty"`
	OnChain      bool              `json:"on_chain"`
	LatestTxHash string            `json:"latest_tx_hash,omitempty"`
	ContentHash  string            `json:"content_hash"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

func transactionStatusPayload(tx *domain.TrackedTransaction) *TransactionStatusPayload {
	return &TransactionStatusPayload{
		TransactionID: tx.ID,
		NoteID:        tx.NoteID,
		Type:          tx.Type,
		Status:        tx.Status,
		TxHash:        tx.Hash(),
		BlockHeight:   tx.BlockHeight,
		ErrorMessage:  tx.ErrorMessage,
	}
}

func noteUpdatePayload(note *domain.Note) *NoteUpdatePayload {
	return &NoteUpdatePayload{
		NoteID:       note.ID,
		Title:        note.Title,
		Status:       note.Status,
		OnChain:      note.OnChain,
		LatestTxHash: note.LatestTxHash,
		ContentHash:  note.ContentHash,
		UpdatedAt:    note.UpdatedAt,
	}
}
