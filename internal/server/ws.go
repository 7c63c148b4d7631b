package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"TradeScope/internal/snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsUpdate is pushed to a client whenever a new snapshot is published.
type wsUpdate struct {
	Version   uint64                  `json:"version"`
	TakenAt   time.Time               `json:"taken_at"`
	Positions []snapshot.PositionView `json:"positions"`
}

// GET /ws — stream snapshot updates. An optional ?wallet= narrows the
// pushed views to one wallet.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	wallet := r.URL.Query().Get("wallet")

	s.metrics.WSClients.Inc()
	defer s.metrics.WSClients.Dec()
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Str("wallet", wallet).Msg("websocket client connected")

	updates, cancel := s.pub.Subscribe()
	defer cancel()

	// Reader loop only to detect the client going away; inbound frames
	// are not part of the protocol.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current snapshot immediately so the client does not wait
	// for the next publish.
	if err := s.pushSnapshot(conn, wallet, s.pub.Current()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := s.pushSnapshot(conn, wallet, snap); err != nil {
				s.logger.Debug().Err(err).Msg("websocket push failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushSnapshot(conn *websocket.Conn, wallet string, snap *snapshot.Snapshot) error {
	views := snap.Views
	if wallet != "" {
		views = snap.ByWallet(wallet)
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsUpdate{
		Version:   snap.Version,
		TakenAt:   snap.TakenAt,
		Positions: views,
	}); err != nil {
		return err
	}
	s.metrics.WSPushes.Inc()
	return nil
}
