//nolint:revive // exported
package rstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/rbody"
	"pairbench/server/pkg/permcheck"
	"pairbench/server/pkg/room"
	"pairbench/server/pkg/service/smember"
)

const writeTimeout = 5 * time.Second

type StreamHandler struct {
	ms     smember.MemberService
	hub    *room.Hub
	logger *slog.Logger
}

func New(ms smember.MemberService, hub *room.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{ms: ms, hub: hub, logger: logger}
}

// Path is exported so the bootstrap can exclude the stream from
// response-buffering middleware.
const Path = "GET /ws"

func CreateService(srv *StreamHandler) api.Service {
	return api.Service{Path: Path, Handler: http.HandlerFunc(srv.Attach)}
}

// Attach upgrades the request and joins the caller's session to the
// workspace room. Membership is checked before the upgrade; a session stays
// attached until the client goes away, the workspace room closes, or the
// server drains.
func (h *StreamHandler) Attach(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := rbody.QueryID(r, "workspace")
	if err != nil {
		rbody.WriteError(w, err)
		return
	}
	member, err := permcheck.CheckWorkspaceReadAccess(r.Context(), h.ms, workspaceID)
	if err != nil {
		rbody.WriteError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck // already closing

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.hub.Attach(ctx, workspaceID)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "room unavailable")
		return
	}
	h.logger.Info("session joined room",
		"workspace", workspaceID.String(), "user", member.UserID.String())

	// Inbound frames are not part of the contract; the read loop only
	// surfaces client disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for evt := range events {
		writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(writeCtx, conn, evt.Payload)
		writeCancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Warn("dropping session after write failure",
					"workspace", workspaceID.String(), "error", err)
			}
			return
		}
		if evt.Payload.Event == room.EventWorkspaceDeleted {
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "room closed")
	h.logger.Info("session left room",
		"workspace", workspaceID.String(), "user", member.UserID.String())
}
