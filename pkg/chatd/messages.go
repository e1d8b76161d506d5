package chatd

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/vango-dev/chatd/pkg/protocol"
)

// NoIndex marks an unset cursor.
const NoIndex = math.MinInt

// MessageStatus is the delivery state of a buffered message.
type MessageStatus int

const (
	// StatusSending: submitted, ID is a transaction id.
	StatusSending MessageStatus = iota
	// StatusConfirmed: ID is the permanent id.
	StatusConfirmed
	// StatusRejected: the server refused it. ID is still the transaction id.
	StatusRejected
)

// String returns the status name.
func (s MessageStatus) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusConfirmed:
		return "confirmed"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("MessageStatus(%d)", int(s))
	}
}

// Message is one chat message.
type Message struct {
	ID        protocol.ID
	UserID    protocol.ID
	Timestamp uint32
	Data      []byte
	Status    MessageStatus
}

// commandSender is the part of a Connection a Messages buffer writes to.
type commandSender interface {
	IsOpen() bool
	sendCommand(cmd *protocol.Command) bool
}

// Messages is the buffer of one chat: a gap-free run of messages indexed
// from LowNum to HighNum that grows at both ends, plus the bookkeeping of
// sends and edits the server has not acknowledged yet. It must only be
// used on the loop.
type Messages struct {
	chatID protocol.ID
	userID protocol.ID

	// forward holds indexes forwardStart.., backward holds
	// forwardStart-1 downwards.
	forward      []*Message
	backward     []*Message
	forwardStart int

	idToIndex map[protocol.ID]int // permanent ids only
	sending   map[protocol.ID]int // transaction id -> index
	modified  map[int]*Message    // edits not yet echoed by the server

	lastSeenIdx        int
	lastReceivedIdx    int
	unresolvedSeen     protocol.ID
	unresolvedReceived protocol.ID
	retention          time.Duration
	fetchingHistory    bool

	conn     commandSender
	listener Listener
	logger   *slog.Logger
	metrics  *metrics
	cfg      *Config
	newTxID  func() protocol.ID
	now      func() time.Time
}

func newMessages(cl *Client, chatID protocol.ID, conn commandSender) *Messages {
	return &Messages{
		chatID:          chatID,
		userID:          cl.userID,
		idToIndex:       make(map[protocol.ID]int),
		sending:         make(map[protocol.ID]int),
		modified:        make(map[int]*Message),
		lastSeenIdx:     NoIndex,
		lastReceivedIdx: NoIndex,
		conn:            conn,
		listener:        cl.listener,
		logger:          cl.logger.With("chat", chatID.String()),
		metrics:         cl.metrics,
		cfg:             cl.cfg,
		newTxID:         func() protocol.ID { return cl.allocTxID(chatID) },
		now:             cl.now,
	}
}

// ChatID returns the chat id.
func (m *Messages) ChatID() protocol.ID {
	return m.chatID
}

// LowNum returns the lowest index. The buffer is empty when
// HighNum() < LowNum().
func (m *Messages) LowNum() int {
	return m.forwardStart - len(m.backward)
}

// HighNum returns the highest index.
func (m *Messages) HighNum() int {
	return m.forwardStart + len(m.forward) - 1
}

// Len returns the number of buffered messages.
func (m *Messages) Len() int {
	return len(m.forward) + len(m.backward)
}

// PendingCount returns the number of messages awaiting confirmation.
func (m *Messages) PendingCount() int {
	return len(m.sending)
}

// LastSeenIdx returns the index of the last seen message, or NoIndex.
func (m *Messages) LastSeenIdx() int {
	return m.lastSeenIdx
}

// LastReceivedIdx returns the index of the last delivered message, or NoIndex.
func (m *Messages) LastReceivedIdx() int {
	return m.lastReceivedIdx
}

// Retention returns the retention period announced by the server.
func (m *Messages) Retention() time.Duration {
	return m.retention
}

// At returns a copy of the message at idx.
func (m *Messages) At(idx int) (Message, bool) {
	msg := m.at(idx)
	if msg == nil {
		return Message{}, false
	}
	return *msg, true
}

// ByID returns the index of the message with permanent id.
func (m *Messages) ByID(id protocol.ID) (int, bool) {
	idx, ok := m.idToIndex[id]
	return idx, ok
}

func (m *Messages) at(idx int) *Message {
	if idx >= m.forwardStart {
		i := idx - m.forwardStart
		if i >= len(m.forward) {
			return nil
		}
		return m.forward[i]
	}
	i := m.forwardStart - 1 - idx
	if i >= len(m.backward) {
		return nil
	}
	return m.backward[i]
}

func (m *Messages) pushForward(msg *Message) int {
	m.forward = append(m.forward, msg)
	return m.HighNum()
}

func (m *Messages) pushBackward(msg *Message) int {
	m.backward = append(m.backward, msg)
	return m.LowNum()
}

// Submit appends a new message at the high end and sends it if the
// connection is open. Otherwise it is sent when the connection rejoins.
// The returned index identifies the message until it is confirmed.
func (m *Messages) Submit(data []byte) int {
	msg := &Message{
		ID:        m.newTxID(),
		UserID:    m.userID,
		Timestamp: uint32(m.now().Unix()),
		Data:      bytes.Clone(data),
		Status:    StatusSending,
	}
	idx := m.pushForward(msg)
	m.sending[msg.ID] = idx
	m.metrics.pendingSends.Inc()

	if m.conn.IsOpen() {
		m.conn.sendCommand(m.newMsgCommand(msg))
	}
	return idx
}

// Resend submits a rejected message again under a new transaction id.
func (m *Messages) Resend(idx int) error {
	msg := m.at(idx)
	if msg == nil || msg.Status != StatusRejected {
		return chatError(m.chatID, "resend", ErrMessageNotFound)
	}
	msg.ID = m.newTxID()
	msg.Status = StatusSending
	m.sending[msg.ID] = idx
	m.metrics.pendingSends.Inc()

	if m.conn.IsOpen() {
		m.conn.sendCommand(m.newMsgCommand(msg))
	}
	return nil
}

// Confirm resolves transaction id txID to permanent id msgID. A null
// msgID marks the message rejected; it stays in the buffer. Confirm
// returns false, without touching the buffer, if txID is not pending.
func (m *Messages) Confirm(txID, msgID protocol.ID) bool {
	idx, ok := m.sending[txID]
	if !ok {
		return false
	}
	delete(m.sending, txID)
	m.metrics.pendingSends.Dec()
	msg := m.at(idx)

	if msgID.IsNull() {
		msg.Status = StatusRejected
		delete(m.modified, idx)
		m.logger.Warn("message rejected", "msgxid", txID.String())
		m.listener.OnMessageRejected(m.chatID, idx, *msg)
		return true
	}

	msg.ID = msgID
	msg.Status = StatusConfirmed
	m.idToIndex[msgID] = idx
	m.resolveCursors(msgID, idx)
	m.listener.OnMessageConfirmed(m.chatID, idx, txID, *msg)

	// An edit made while pending could not be sent without the permanent id.
	if _, edited := m.modified[idx]; edited && m.conn.IsOpen() {
		m.conn.sendCommand(m.msgUpdCommand(msg))
	}
	return true
}

// Modify replaces the content of the message at idx. A pending message
// is changed in place and the edit is sent once it is confirmed. A
// confirmed message is edited on the server now, or on rejoin if offline.
func (m *Messages) Modify(idx int, data []byte) error {
	msg := m.at(idx)
	if msg == nil {
		return chatError(m.chatID, "modify", ErrMessageNotFound)
	}
	msg.Data = bytes.Clone(data)

	switch msg.Status {
	case StatusSending:
		m.modified[idx] = msg
	case StatusConfirmed:
		m.modified[idx] = msg
		if m.conn.IsOpen() {
			m.conn.sendCommand(m.msgUpdCommand(msg))
		}
	}
	return nil
}

// Delete clears the content of the message at idx.
func (m *Messages) Delete(idx int) error {
	return m.Modify(idx, nil)
}

// Store adds a message from the server: at the high end when isNew,
// otherwise at the low end as history. A message already buffered is
// ignored and Store returns its index and false.
func (m *Messages) Store(isNew bool, msg Message) (int, bool) {
	if idx, dup := m.idToIndex[msg.ID]; dup {
		m.logger.Debug("duplicate message ignored", "msgid", msg.ID.String())
		return idx, false
	}

	stored := msg
	stored.Status = StatusConfirmed
	var idx int
	if isNew {
		idx = m.pushForward(&stored)
	} else {
		idx = m.pushBackward(&stored)
	}
	m.idToIndex[msg.ID] = idx

	if isNew {
		m.listener.OnMessageReceived(m.chatID, idx, stored)
	} else {
		m.listener.OnMessageLoaded(m.chatID, idx, stored)
	}
	m.resolveCursors(msg.ID, idx)
	return idx, true
}

// OnMsgUpdate applies an edit from the server. If a local edit of the
// same message is outstanding, an identical update is its echo and
// clears it, while a different one is overridden by sending the local
// edit again.
func (m *Messages) OnMsgUpdate(msgID protocol.ID, data []byte) error {
	idx, ok := m.idToIndex[msgID]
	if !ok {
		return chatError(m.chatID, "msgupd", ErrMessageNotFound)
	}
	if local, pending := m.modified[idx]; pending {
		if bytes.Equal(local.Data, data) {
			delete(m.modified, idx)
			return nil
		}
		m.logger.Info("concurrent edit, resending local content", "msgid", msgID.String())
		if m.conn.IsOpen() {
			m.conn.sendCommand(m.msgUpdCommand(local))
		}
		return nil
	}

	msg := m.at(idx)
	msg.Data = bytes.Clone(data)
	m.listener.OnMessageEdited(m.chatID, idx, *msg)
	return nil
}

// Range returns the oldest and newest confirmed ids in the buffer,
// skipping unconfirmed messages at either end. ok is false if no
// message is confirmed.
func (m *Messages) Range() (oldest, newest protocol.ID, ok bool) {
	low, high := m.LowNum(), m.HighNum()
	lo := low
	for ; lo <= high; lo++ {
		if m.at(lo).Status == StatusConfirmed {
			break
		}
	}
	if lo > high {
		return protocol.NullID, protocol.NullID, false
	}
	hi := high
	for ; hi > lo; hi-- {
		if m.at(hi).Status == StatusConfirmed {
			break
		}
	}
	return m.at(lo).ID, m.at(hi).ID, true
}

// Check compares the server's newest id with ours. On mismatch it
// fetches the last CheckLookback messages again and returns true.
func (m *Messages) Check(newest protocol.ID) bool {
	_, local, ok := m.Range()
	if ok && local == newest || !ok && newest.IsNull() {
		return false
	}
	m.logger.Warn("newest id mismatch, reloading history",
		"server", newest.String(),
		"local", local.String())
	m.listener.OnHistoryReloading(m.chatID)
	m.requestHistory(m.cfg.CheckLookback)
	return true
}

// GetHistory requests count older messages. It returns false if a
// history fetch is already in progress.
func (m *Messages) GetHistory(count int) bool {
	if m.fetchingHistory || count <= 0 {
		return false
	}
	m.requestHistory(count)
	return true
}

func (m *Messages) requestHistory(count int) {
	m.fetchingHistory = true
	m.conn.sendCommand(protocol.Hist{ChatID: m.chatID, Count: -int32(count)}.Encode())
}

// SetSeen marks the message at idx as seen and tells the server. Seen
// never moves backwards.
func (m *Messages) SetSeen(idx int) error {
	msg := m.at(idx)
	if msg == nil || msg.Status != StatusConfirmed {
		return chatError(m.chatID, "seen", ErrMessageNotFound)
	}
	if !m.setLastSeen(idx) {
		return nil
	}
	m.conn.sendCommand(protocol.Seen{ChatID: m.chatID, UserID: m.userID, ID: msg.ID}.Encode())
	return nil
}

func (m *Messages) onSeen(msgID protocol.ID) {
	idx, ok := m.idToIndex[msgID]
	if !ok {
		m.unresolvedSeen = msgID
		return
	}
	m.setLastSeen(idx)
}

func (m *Messages) onReceived(msgID protocol.ID) {
	idx, ok := m.idToIndex[msgID]
	if !ok {
		m.unresolvedReceived = msgID
		return
	}
	m.setLastReceived(idx)
}

func (m *Messages) setLastSeen(idx int) bool {
	if m.lastSeenIdx != NoIndex && idx <= m.lastSeenIdx {
		return false
	}
	m.lastSeenIdx = idx
	m.listener.OnLastSeenChanged(m.chatID, idx)
	return true
}

func (m *Messages) setLastReceived(idx int) bool {
	if m.lastReceivedIdx != NoIndex && idx <= m.lastReceivedIdx {
		return false
	}
	m.lastReceivedIdx = idx
	m.listener.OnLastReceivedChanged(m.chatID, idx)
	return true
}

// resolveCursors applies a SEEN or RECEIVED that named msgID before the
// message was buffered.
func (m *Messages) resolveCursors(msgID protocol.ID, idx int) {
	if !m.unresolvedSeen.IsNull() && m.unresolvedSeen == msgID {
		m.unresolvedSeen = protocol.NullID
		m.setLastSeen(idx)
	}
	if !m.unresolvedReceived.IsNull() && m.unresolvedReceived == msgID {
		m.unresolvedReceived = protocol.NullID
		m.setLastReceived(idx)
	}
}

func (m *Messages) onRetention(userID protocol.ID, period uint32) {
	m.retention = time.Duration(period) * time.Second
	m.listener.OnRetention(m.chatID, userID, m.retention)
}

func (m *Messages) onHistDone() {
	m.fetchingHistory = false
	m.listener.OnHistoryDone(m.chatID)
}

// rejoin sends, in order, JOIN, then RANGE (or HIST when nothing is
// confirmed yet), then every pending message, then every outstanding
// edit of a confirmed message. It stops and returns false as soon as a
// write fails.
func (m *Messages) rejoin() bool {
	send := m.conn.sendCommand

	if !send(protocol.Join{ChatID: m.chatID, UserID: m.userID, Priv: protocol.PrivNoChange}.Encode()) {
		return false
	}
	if oldest, newest, ok := m.Range(); ok {
		if !send(protocol.Range{ChatID: m.chatID, Oldest: oldest, Newest: newest}.Encode()) {
			return false
		}
	} else {
		m.fetchingHistory = true
		if !send(protocol.Hist{ChatID: m.chatID, Count: -int32(m.cfg.InitialHistory)}.Encode()) {
			return false
		}
	}

	for _, idx := range sortedValues(m.sending) {
		if !send(m.newMsgCommand(m.at(idx))) {
			return false
		}
	}
	for _, idx := range sortedKeys(m.modified) {
		msg := m.modified[idx]
		if msg.Status != StatusConfirmed {
			continue
		}
		if !send(m.msgUpdCommand(msg)) {
			return false
		}
	}
	return true
}

// release drops the buffer's pending bookkeeping when the chat is left.
func (m *Messages) release() {
	m.metrics.pendingSends.Sub(float64(len(m.sending)))
	m.sending = make(map[protocol.ID]int)
	m.modified = make(map[int]*Message)
}

func (m *Messages) newMsgCommand(msg *Message) *protocol.Command {
	return protocol.Msg{
		Op:        protocol.OpNewMsg,
		ID:        msg.ID,
		UserID:    msg.UserID,
		ChatID:    m.chatID,
		Timestamp: msg.Timestamp,
		Data:      msg.Data,
	}.Encode()
}

func (m *Messages) msgUpdCommand(msg *Message) *protocol.Command {
	return protocol.MsgUpd{ChatID: m.chatID, ID: msg.ID, Data: msg.Data}.Encode()
}

func sortedValues(idx map[protocol.ID]int) []int {
	out := make([]int, 0, len(idx))
	for _, v := range idx {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func sortedKeys(set map[int]*Message) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
