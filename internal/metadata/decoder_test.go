package metadata

import (
	"encoding/json"
	"errors"
	"testing"

	"chainnotes-sync-server/internal/blockfrost"
	"chainnotes-sync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "addr_test1qpwallet"

func entries(label, payload string) []blockfrost.MetadataEntry {
	return []blockfrost.MetadataEntry{{Label: label, JSONMetadata: json.RawMessage(payload)}}
}

func TestDecodeSelectsConfiguredLabel(t *testing.T) {
	list := []blockfrost.MetadataEntry{
		{Label: "674", JSONMetadata: json.RawMessage(`{"msg":["hello"]}`)},
		{Label: "1", JSONMetadata: json.RawMessage(`{"action":"create","title":"X","walletAddress":"` + wallet + `"}`)},
	}

	action, ok := Decode(list, 1)
	require.True(t, ok)

	create, isCreate := action.(Create)
	require.True(t, isCreate)
	assert.Equal(t, "X", create.Title)
	assert.Equal(t, wallet, create.Wallet())
	assert.Nil(t, create.Content)
}

func TestDecodeIgnoresUntaggedMetadata(t *testing.T) {
	_, ok := Decode(entries("674", `{"action":"CREATE","title":"X","walletAddress":"w"}`), 1)
	assert.False(t, ok)

	_, ok = Decode(nil, 1)
	assert.False(t, ok)
}

func TestParseActionSynonyms(t *testing.T) {
	tests := []struct {
		input string
		want  domain.TransactionType
		ok    bool
	}{
		{"CREATE", domain.TransactionTypeCreate, true},
		{"add", domain.TransactionTypeCreate, true},
		{" New ", domain.TransactionTypeCreate, true},
		{"update", domain.TransactionTypeUpdate, true},
		{"Edit", domain.TransactionTypeUpdate, true},
		{"MODIFY", domain.TransactionTypeUpdate, true},
		{"delete", domain.TransactionTypeDelete, true},
		{"Remove", domain.TransactionTypeDelete, true},
		{"archive", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseActionType(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCreate(t *testing.T) {
	action, err := Parse(json.RawMessage(`{
		"action": "ADD",
		"walletAddress": "` + wallet + `",
		"title": "Groceries",
		"content": ["milk, eggs, ", "bread"],
		"category": "home",
		"isPinned": true
	}`))
	require.NoError(t, err)

	create := action.(Create)
	assert.Equal(t, "Groceries", create.Title)
	require.NotNil(t, create.Content)
	assert.Equal(t, "milk, eggs, bread", *create.Content)
	require.NotNil(t, create.Category)
	assert.Equal(t, "home", *create.Category)
	require.NotNil(t, create.Pinned)
	assert.True(t, *create.Pinned)
}

func TestParseUpdateKeepsAbsentFieldsNil(t *testing.T) {
	action, err := Parse(json.RawMessage(`{"action":"UPDATE","noteId":7,"walletAddress":"` + wallet + `","content":"new body"}`))
	require.NoError(t, err)

	update := action.(Update)
	assert.Equal(t, int64(7), update.NoteID)
	assert.Nil(t, update.Title)
	assert.Nil(t, update.Category)
	assert.Nil(t, update.Pinned)
	require.NotNil(t, update.Content)
	assert.Equal(t, "new body", *update.Content)
	assert.Equal(t, int64(7), NoteID(update))
}

func TestParseNoteIDForms(t *testing.T) {
	tests := []struct {
		name    string
		noteID  string
		want    int64
		wantErr bool
	}{
		{name: "number", noteID: `7`, want: 7},
		{name: "numeric string", noteID: `"42"`, want: 42},
		{name: "integral float", noteID: `7.0`, want: 7},
		{name: "fraction", noteID: `7.5`, wantErr: true},
		{name: "zero", noteID: `0`, wantErr: true},
		{name: "negative", noteID: `-3`, wantErr: true},
		{name: "word", noteID: `"seven"`, wantErr: true},
		{name: "bool", noteID: `true`, wantErr: true},
		{name: "null", noteID: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := Parse(json.RawMessage(`{"action":"DELETE","walletAddress":"w","noteId":` + tt.noteID + `}`))
			if tt.wantErr {
				var decodeErr *DecodeError
				require.True(t, errors.As(err, &decodeErr))
				assert.Equal(t, "noteId", decodeErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, action.(Delete).NoteID)
		})
	}
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"not an object", `["CREATE"]`, "payload"},
		{"null payload", `null`, "payload"},
		{"missing action", `{"title":"X","walletAddress":"w"}`, "action"},
		{"unknown action", `{"action":"ARCHIVE","walletAddress":"w"}`, "action"},
		{"action not a string", `{"action":1,"walletAddress":"w"}`, "action"},
		{"missing wallet", `{"action":"CREATE","title":"X"}`, "walletAddress"},
		{"blank wallet", `{"action":"CREATE","title":"X","walletAddress":"  "}`, "walletAddress"},
		{"create without title", `{"action":"CREATE","walletAddress":"w","content":"body"}`, "title"},
		{"create with blank title", `{"action":"CREATE","walletAddress":"w","title":"   "}`, "title"},
		{"update without note id", `{"action":"UPDATE","walletAddress":"w","title":"X"}`, "noteId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := Parse(json.RawMessage(tt.payload))
			assert.Nil(t, action)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}

func TestParseToleratesWrongTypedOptionalFields(t *testing.T) {
	action, err := Parse(json.RawMessage(`{"action":"UPDATE","noteId":"3","walletAddress":"w","isPinned":"yes","category":12}`))
	require.NoError(t, err)

	update := action.(Update)
	assert.Nil(t, update.Pinned)
	assert.Nil(t, update.Category)
}
