package cmd

import (
	"context"
	"sync/atomic"

	"github.com/azzcolabs/concierge/core/chat"
	"github.com/azzcolabs/concierge/core/persona"
)

// serviceHolder lets the serve loop swap the chat pipeline on
// configuration reload without restarting the HTTP server.
type serviceHolder struct {
	current atomic.Pointer[chat.Service]
}

func newServiceHolder(service *chat.Service) *serviceHolder {
	h := &serviceHolder{}
	h.current.Store(service)
	return h
}

func (h *serviceHolder) swap(service *chat.Service) {
	h.current.Store(service)
}

func (h *serviceHolder) Generate(ctx context.Context, userMessage string, history []persona.Turn, visitorID, sessionID string) (*chat.Result, error) {
	return h.current.Load().Generate(ctx, userMessage, history, visitorID, sessionID)
}

func (h *serviceHolder) CheckHealth(ctx context.Context) chat.Health {
	return h.current.Load().CheckHealth(ctx)
}
