// Package websocket pushes transaction and note changes to the wallets
// that own them.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chainnotes-sync-server/internal/domain"
	"chainnotes-sync-server/internal/logging"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Config struct {
	MaxConnPerWallet int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
}

type Manager struct {
	logger       *slog.Logger
	config       Config
	clients      map[string]*Client
	walletIndex  map[string]map[string]bool
	clientsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client
	inbound    chan *ClientMessage
	done       chan struct{}
}

func NewManager(logger *slog.Logger, config Config) *Manager {
	return &Manager{
		logger:      logging.Child(logger, "websocket"),
		config:      config,
		clients:     make(map[string]*Client),
		walletIndex: make(map[string]map[string]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan *ClientMessage),
		done:        make(chan struct{}),
	}
}

// Run serves registrations and inbound messages until ctx is done, then
// closes every connection.
func (m *Manager) Run(ctx context.Context) {
	defer m.closeAll()
	defer close(m.done)

	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.inbound:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			return
		}
	}
}

// Register hands client to the run loop. It reports false once the
// manager has stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Handle queues an inbound message. It reports false once the manager has
// stopped.
func (m *Manager) Handle(msg *ClientMessage) bool {
	select {
	case m.inbound <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.walletIndex[client.Wallet] == nil {
		m.walletIndex[client.Wallet] = make(map[string]bool)
	}

	if m.config.MaxConnPerWallet > 0 && len(m.walletIndex[client.Wallet]) >= m.config.MaxConnPerWallet {
		m.logger.Warn("max connections reached for wallet", "wallet", client.Wallet)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.walletIndex[client.Wallet][client.ID] = true

	m.logger.Debug("client registered", "client_id", client.ID, "wallet", client.Wallet)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.removeLocked(client)
}

func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}

	delete(m.clients, client.ID)
	delete(m.walletIndex[client.Wallet], client.ID)
	if len(m.walletIndex[client.Wallet]) == 0 {
		delete(m.walletIndex, client.Wallet)
	}

	close(client.Send)
	m.logger.Debug("client unregistered", "client_id", client.ID)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, client := range m.clients {
		m.removeLocked(client)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Debug("error unmarshaling message", "client_id", clientMsg.Client.ID, "error", err)
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "invalid message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(clientMsg.Client, TypePong, nil)
	default:
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "unsupported message type " + string(msg.Type)})
	}
}

func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error("failed to build message", "type", msgType, "error", err)
		return
	}
	if err := m.SendToClient(client.ID, msg); err != nil {
		m.logger.Error("failed to send message", "client_id", client.ID, "error", err)
	}
}

// BroadcastToWallet sends message to every connection of wallet. Clients
// whose send buffer is full are disconnected.
func (m *Manager) BroadcastToWallet(wallet string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client
	m.clientsMutex.RLock()
	for clientID := range m.walletIndex[wallet] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		m.logger.Warn("client send buffer full, closing connection", "client_id", client.ID)
		m.unregisterClient(client)
	}
	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("client send buffer full", "client_id", clientID)
	}
	return nil
}

func (m *Manager) GetWalletConnections(wallet string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.walletIndex[wallet])
}

func (m *Manager) ConnectionCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.clients)
}

// TransactionStatusChanged pushes tx to its wallet.
func (m *Manager) TransactionStatusChanged(tx *domain.TrackedTransaction) {
	m.publish(tx.WalletAddress, TypeTransactionStatus, transactionStatusPayload(tx))
}

// NoteUpdated pushes note to its owning wallet. Notes without an owner are
// not broadcast.
func (m *Manager) NoteUpdated(note *domain.Note) {
	m.publish(note.Owner(), TypeNoteUpdate, noteUpdatePayload(note))
}

func (m *Manager) publish(wallet string, msgType MessageType, payload interface{}) {
	if wallet == "" {
		return
	}
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error("failed to build message", "type", msgType, "error", err)
		return
	}
	if err := m.BroadcastToWallet(wallet, msg); err != nil {
		m.logger.Error("failed to broadcast", "wallet", wallet, "type", msgType, "error", err)
	}
}
