// Package host defines the narrow contract the bot consumes from the
// surrounding voice-server host: live clients, private chat, channel moves
// and renames. The host delivers events and RPC-like calls; nothing here
// implements a wire protocol.
package host

// MaxChannelNameLength is the longest channel name the server accepts.
const MaxChannelNameLength = 40

// Client is the host's view of a connected client.
type Client struct {
	UID          string
	Nickname     string
	ChannelID    uint64
	ServerGroups []uint64
}

// Session exposes the host operations the support plugin needs.
type Session interface {
	ClientByUID(uid string) (Client, bool)
	OnlineClients() []Client
	SendPrivate(uid string, message string) error
	MoveClient(uid string, channelID uint64) error
	RenameChannel(channelID uint64, name string) error
	ChannelName(channelID uint64) (string, error)
}
