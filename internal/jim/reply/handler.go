package reply

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bdobrica/Jim/common/trace"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/trigger"
)

// Commands dispatches chat commands. handled is false for messages that are
// not commands.
type Commands interface {
	Dispatch(ctx context.Context, msg gateway.MessageEvent) (reply gateway.Reply, handled bool)
}

// Handler glues a platform Sender to the trigger engine and orchestrator.
// One Handler is built per gateway; the engine and orchestrator are shared.
type Handler struct {
	engine   *trigger.Engine
	orch     *Orchestrator
	sender   gateway.Sender
	commands Commands
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler builds a Handler. commands may be nil.
func NewHandler(engine *trigger.Engine, orch *Orchestrator, sender gateway.Sender, commands Commands, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   engine,
		orch:     orch,
		sender:   sender,
		commands: commands,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one inbound message. It is meant to be called on its own
// goroutine per message; it blocks until the reply has been sent.
func (h *Handler) Handle(ctx context.Context, msg gateway.MessageEvent) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := trace.Logger(ctx, h.logger).With("user", msg.SenderID, "channel", msg.ChannelID)

	if h.commands != nil && !msg.IsSelf && !msg.IsBotAuthor {
		if r, ok := h.commands.Dispatch(ctx, msg); ok {
			if err := gateway.Deliver(ctx, h.sender, msg.ChannelID, msg.EventID, r); err != nil {
				log.Error("reply: send command response", "err", err)
			}
			return
		}
	}

	d, release := h.engine.Admit(msg, h.now())
	defer release()
	if !d.Engage {
		log.Debug("reply: not engaging", "rejection", d.Rejection)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("reply: panic in turn", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	log.Debug("reply: engaging", "reasons", d.Reasons)
	if err := h.sender.SetTyping(ctx, msg.ChannelID, true); err != nil {
		log.Debug("reply: set typing", "err", err)
	}
	out := h.orch.HandleTurn(ctx, TurnFromMessage(msg))
	if err := h.sender.SetTyping(ctx, msg.ChannelID, false); err != nil {
		log.Debug("reply: clear typing", "err", err)
	}

	if err := h.sender.SendReply(ctx, msg.ChannelID, msg.EventID, out.Reply); err != nil {
		log.Error("reply: send", "err", err, "genuine", out.Genuine)
	}
}

// Func adapts h to the gateway callback type.
func (h *Handler) Func() gateway.Handler { return h.Handle }
