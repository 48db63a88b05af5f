package coordinator

import (
	"encoding/json"
	"net/http"

	ws "nhooyr.io/websocket"
)

// HandleEventsWS streams arbiter events to an observer connection as JSON
// text messages. Observers are read-only; slow ones miss events rather than
// back-pressuring the arbiter.
func (h *Handlers) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws accept")
		return
	}

	sub, cancel := h.events.Subscribe()
	defer cancel()

	// Write-only connection: CloseRead keeps control frames serviced and
	// cancels the context when the observer goes away.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = c.Close(ws.StatusNormalClosure, "done")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = c.Close(ws.StatusNormalClosure, "done")
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := c.Write(ctx, ws.MessageText, data); err != nil {
				_ = c.Close(ws.StatusNormalClosure, "done")
				return
			}
		}
	}
}
