// Package bot routes incoming chat commands to registered handlers. It is
// the command-surface counterpart to the host event dispatcher: the host
// delivers raw private-message text, the router parses, permission-checks
// and dispatches it.
package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/host"
	"github.com/voicekit/support-bot/internal/observability"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

// HandlerFunc executes one chat command for a resolved client.
type HandlerFunc func(ctx context.Context, client host.Client, args []string) error

// Permission gates a command before its handler runs. A refused command
// behaves exactly like an unknown one: nothing surfaces to the client.
type Permission func(client host.Client) bool

type command struct {
	name      string
	minArgs   int
	usage     string
	permitted Permission
	handler   HandlerFunc
}

// Router parses prefixed chat commands and dispatches them.
type Router struct {
	prefix   string
	session  host.Session
	logger   *zap.Logger
	metrics  *observability.Metrics
	commands map[string]command
}

// NewRouter creates an empty router.
func NewRouter(prefix string, session host.Session, logger *zap.Logger, metrics *observability.Metrics) *Router {
	if prefix == "" {
		prefix = "!"
	}
	return &Router{
		prefix:   prefix,
		session:  session,
		logger:   logger,
		metrics:  metrics,
		commands: make(map[string]command),
	}
}

// Register binds a command name to a handler. A nil permission admits anyone.
func (r *Router) Register(name string, minArgs int, usage string, permitted Permission, handler HandlerFunc) {
	r.commands[name] = command{
		name:      name,
		minArgs:   minArgs,
		usage:     usage,
		permitted: permitted,
		handler:   handler,
	}
}

// Dispatch handles one private message from uid. Non-command text and
// unknown or unpermitted commands are ignored.
func (r *Router) Dispatch(ctx context.Context, uid string, text string) {
	if !strings.HasPrefix(text, r.prefix) || len(text) <= len(r.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, r.prefix))
	if len(fields) == 0 {
		return
	}
	cmd, known := r.commands[fields[0]]
	if !known {
		return
	}
	client, online := r.session.ClientByUID(uid)
	if !online {
		return
	}
	if cmd.permitted != nil && !cmd.permitted(client) {
		r.logger.Debug("command refused", zap.String("command", cmd.name), zap.String("uid", uid))
		return
	}
	args := fields[1:]
	if len(args) < cmd.minArgs {
		r.reply(uid, "Usage: "+r.prefix+cmd.usage)
		return
	}
	err := cmd.handler(ctx, client, args)
	r.metrics.RecordCommand(cmd.name, err == nil)
	if err == nil {
		return
	}
	domainErr := apperrors.ToDomainError(err)
	switch domainErr.Code {
	case "VALIDATION_FAILED", "NOT_FOUND", "CONFLICT", "BLACKLISTED":
		r.reply(uid, domainErr.Message)
	default:
		r.logger.Error("command failed",
			zap.String("command", cmd.name),
			zap.String("uid", uid),
			zap.Error(domainErr))
	}
}

func (r *Router) reply(uid, message string) {
	if err := r.session.SendPrivate(uid, message); err != nil {
		r.logger.Warn("failed to reply", zap.String("uid", uid), zap.Error(err))
	}
}
