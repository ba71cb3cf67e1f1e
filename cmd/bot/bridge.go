package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/events"
	"github.com/voicekit/support-bot/internal/host"
)

// eventBridge turns host session changes into dispatcher events. Publication
// happens off the calling goroutine: host calls made while the orchestrator
// handles a command would otherwise re-enter it through the dispatcher.
type eventBridge struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func (b *eventBridge) ClientConnected(c host.Client) {
	b.publish(events.New(events.EventClientConnected, events.ClientConnectedPayload{Client: c}))
}

func (b *eventBridge) ClientDisconnected(c host.Client) {
	b.publish(events.New(events.EventSupporterPresence, events.SupporterPresencePayload{UID: c.UID, Online: false}))
}

func (b *eventBridge) ClientMoved(c host.Client, from, to uint64) {
	b.publish(events.New(events.EventClientMoved, events.ClientMovedPayload{
		Client:      c,
		FromChannel: from,
		ToChannel:   to,
	}))
}

func (b *eventBridge) publish(event events.Event) {
	go func() {
		if err := b.dispatcher.Publish(context.Background(), event); err != nil {
			b.logger.Warn("event handling failed",
				zap.String("event", string(event.Type)),
				zap.Error(err))
		}
	}()
}
