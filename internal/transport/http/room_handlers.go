package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/presence"
	"github.com/cwrk-planet/chat-relay/internal/rooms"
	"github.com/cwrk-planet/chat-relay/internal/store"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
)

type HistoryReader interface {
	History(ctx context.Context, roomID, before string, limit int) ([]domain.Message, string, error)
}

type RoomLister interface {
	Rooms() []rooms.RoomInfo
}

type PresenceLister interface {
	List() []presence.Entry
}

type RoomHandlers struct {
	History  HistoryReader
	Rooms    RoomLister
	Presence PresenceLister
	// page size when ?limit= is absent; clamped to store.MaxHistoryLimit
	DefaultLimit int
}

// GET /rooms
func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.Rooms.Rooms())
}

// GET /rooms/{id}/messages?before=&limit=
func (h *RoomHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "id"))
	if roomID == "" {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "room is required", nil)
		return
	}

	limit := h.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}
	limit = store.ClampLimit(limit)

	msgs, next, err := h.History.History(r.Context(), roomID, r.URL.Query().Get("before"), limit)
	if err != nil {
		writeError(r.Context(), w, "rooms.messages", err)
		return
	}

	httputil.OK(w, HistoryResponse{Items: toMessageItems(msgs), NextCursor: next})
}

// GET /presence
func (h *RoomHandlers) ListPresence(w http.ResponseWriter, r *http.Request) {
	entries := h.Presence.List()
	items := make([]PresenceItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, PresenceItem{User: e.Identity, ConnectedAt: e.ConnectedAt, LastActive: e.LastActive})
	}
	httputil.OK(w, items)
}
