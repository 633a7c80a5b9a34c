package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/domain"
)

var actionSynonyms = map[string]domain.TransactionType{
	"CREATE": domain.TransactionTypeCreate,
	"ADD":    domain.TransactionTypeCreate,
	"NEW":    domain.TransactionTypeCreate,
	"UPDATE": domain.TransactionTypeUpdate,
	"EDIT":   domain.TransactionTypeUpdate,
	"MODIFY": domain.TransactionTypeUpdate,
	"DELETE": domain.TransactionTypeDelete,
	"REMOVE": domain.TransactionTypeDelete,
}

// ParseActionType matches an action name case-insensitively.
func ParseActionType(s string) (domain.TransactionType, bool) {
	t, ok := actionSynonyms[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// DecodeError explains why a labelled payload was not turned into an Action.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("metadata field %q: %s", e.Field, e.Reason)
}

// Find returns the payload of the entry whose label equals label.
func Find(entries []blockfrost.MetadataEntry, label int64) (json.RawMessage, bool) {
	for _, entry := range entries {
		n, err := strconv.ParseInt(strings.TrimSpace(entry.Label), 10, 64)
		if err != nil || n != label {
			continue
		}
		return entry.JSONMetadata, true
	}
	return nil, false
}

// Decode selects the entry tagged with label and parses it. Untagged or
// malformed metadata yields false.
func Decode(entries []blockfrost.MetadataEntry, label int64) (Action, bool) {
	payload, ok := Find(entries, label)
	if !ok {
		return nil, false
	}
	action, err := Parse(payload)
	if err != nil {
		return nil, false
	}
	return action, true
}

// Parse turns one payload object into an Action.
func Parse(payload json.RawMessage) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, &DecodeError{Field: "payload", Reason: "not a JSON object"}
	}

	name := text(fields, "action")
	if name == nil {
		return nil, &DecodeError{Field: "action", Reason: "missing"}
	}
	actionType, ok := ParseActionType(*name)
	if !ok {
		return nil, &DecodeError{Field: "action", Reason: fmt.Sprintf("unknown action %q", *name)}
	}

	wallet := text(fields, "walletAddress")
	if wallet == nil || strings.TrimSpace(*wallet) == "" {
		return nil, &DecodeError{Field: "walletAddress", Reason: "missing"}
	}
	walletAddress := strings.TrimSpace(*wallet)

	switch actionType {
	case domain.TransactionTypeCreate:
		title := text(fields, "title")
		if title == nil || strings.TrimSpace(*title) == "" {
			return nil, &DecodeError{Field: "title", Reason: "required for CREATE"}
		}
		return Create{
			WalletAddress: walletAddress,
			Title:         *title,
			Content:       text(fields, "content"),
			Category:      text(fields, "category"),
			Pinned:        boolean(fields, "isPinned"),
		}, nil

	case domain.TransactionTypeUpdate:
		noteID, err := parseNoteID(fields)
		if err != nil {
			return nil, err
		}
		return Update{
			WalletAddress: walletAddress,
			NoteID:        noteID,
			Title:         text(fields, "title"),
			Content:       text(fields, "content"),
			Category:      text(fields, "category"),
			Pinned:        boolean(fields, "isPinned"),
		}, nil

	default:
		noteID, err := parseNoteID(fields)
		if err != nil {
			return nil, err
		}
		return Delete{WalletAddress: walletAddress, NoteID: noteID}, nil
	}
}

// text reads a string field. Ledger metadata caps strings at 64 bytes, so a
// list of strings is accepted and joined. Any other type counts as absent.
func text(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}

	var chunks []string
	if err := json.Unmarshal(raw, &chunks); err == nil {
		joined := strings.Join(chunks, "")
		return &joined
	}

	return nil
}

func boolean(fields map[string]json.RawMessage, key string) *bool {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	return &b
}

// parseNoteID accepts a JSON number or a numeric string.
func parseNoteID(fields map[string]json.RawMessage) (int64, error) {
	raw, ok := fields["noteId"]
	if !ok || isNull(raw) {
		return 0, &DecodeError{Field: "noteId", Reason: "missing"}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, &DecodeError{Field: "noteId", Reason: "not a number"}
	}

	id, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != math.Trunc(f) || f > math.MaxInt64 {
			return 0, &DecodeError{Field: "noteId", Reason: "not an integer"}
		}
		id = int64(f)
	}
	if id <= 0 {
		return 0, &DecodeError{Field: "noteId", Reason: "must be positive"}
	}
	return id, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
