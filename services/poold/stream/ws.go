package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"thurman/core/events"
)

const wsWriteTimeout = 10 * time.Second

// Handler upgrades to a websocket and streams records matching the pool and
// type query parameters until the client disconnects.
func (h *Hub) Handler(originPatterns []string) http.HandlerFunc {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		filter := Filter{
			Pool: strings.TrimSpace(r.URL.Query().Get("pool")),
			Type: strings.TrimSpace(r.URL.Query().Get("type")),
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "stream closed")
		// Reads are discarded; CloseRead cancels ctx when the peer goes away.
		ctx := conn.CloseRead(r.Context())
		if err := h.stream(ctx, conn, filter); err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				_ = conn.Close(websocket.StatusInternalError, "stream error")
			}
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, filter Filter) error {
	records, cancel := h.Subscribe(filter)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec *events.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
