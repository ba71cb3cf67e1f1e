package host

import (
	"fmt"
	"sync"
)

// Message is one private message delivered through a MemorySession.
type Message struct {
	UID  string
	Text string
}

// Sink receives session lifecycle notifications. Callbacks run on the
// goroutine that mutated the session, after its lock is released.
type Sink interface {
	ClientConnected(c Client)
	ClientDisconnected(c Client)
	ClientMoved(c Client, from, to uint64)
}

// MemorySession is an in-process Session used by tests and local runs where
// no real voice server is attached.
type MemorySession struct {
	mu       sync.Mutex
	clients  map[string]Client
	order    []string
	channels map[uint64]string
	outbox   []Message
	sink     Sink
}

// NewMemorySession creates an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{
		clients:  make(map[string]Client),
		channels: make(map[uint64]string),
	}
}

// SetSink attaches a lifecycle sink. Must be called before traffic starts.
func (s *MemorySession) SetSink(sink Sink) {
	s.sink = sink
}

// AddChannel registers a channel.
func (s *MemorySession) AddChannel(id uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = name
}

// Connect adds or replaces a client.
func (s *MemorySession) Connect(c Client) {
	s.mu.Lock()
	if _, known := s.clients[c.UID]; !known {
		s.order = append(s.order, c.UID)
	}
	s.clients[c.UID] = c
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.ClientConnected(c)
	}
}

// Disconnect removes a client.
func (s *MemorySession) Disconnect(uid string) {
	s.mu.Lock()
	c, known := s.clients[uid]
	delete(s.clients, uid)
	for i, id := range s.order {
		if id == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if known && s.sink != nil {
		s.sink.ClientDisconnected(c)
	}
}

// ClientByUID resolves a connected client.
func (s *MemorySession) ClientByUID(uid string) (Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[uid]
	return c, ok
}

// OnlineClients lists connected clients in connection order.
func (s *MemorySession) OnlineClients() []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Client, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, s.clients[uid])
	}
	return out
}

// SendPrivate records the message in the outbox.
func (s *MemorySession) SendPrivate(uid string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[uid]; !ok {
		return fmt.Errorf("client %s not online", uid)
	}
	s.outbox = append(s.outbox, Message{UID: uid, Text: message})
	return nil
}

// MoveClient updates the client's channel.
func (s *MemorySession) MoveClient(uid string, channelID uint64) error {
	s.mu.Lock()
	c, ok := s.clients[uid]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("client %s not online", uid)
	}
	if _, ok := s.channels[channelID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("channel %d not found", channelID)
	}
	from := c.ChannelID
	c.ChannelID = channelID
	s.clients[uid] = c
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.ClientMoved(c, from, channelID)
	}
	return nil
}

// RenameChannel updates a channel name.
func (s *MemorySession) RenameChannel(channelID uint64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channelID]; !ok {
		return fmt.Errorf("channel %d not found", channelID)
	}
	s.channels[channelID] = name
	return nil
}

// ChannelName resolves a channel name.
func (s *MemorySession) ChannelName(channelID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.channels[channelID]
	if !ok {
		return "", fmt.Errorf("channel %d not found", channelID)
	}
	return name, nil
}

// Outbox returns every private message sent so far.
func (s *MemorySession) Outbox() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.outbox...)
}

// MessagesTo returns the private messages sent to one client.
func (s *MemorySession) MessagesTo(uid string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.outbox {
		if m.UID == uid {
			out = append(out, m)
		}
	}
	return out
}
