package api

import (
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"

	customlog "github.com/open-teleop/pantilt/pkg/log"
)

// StreamWebSocketHandler pushes every broadcast event to the client until it
// disconnects. Messages sent by the client are ignored.
func StreamWebSocketHandler(conn *websocket.Conn, broadcaster *Broadcaster, logger customlog.Logger) {
	logger.Infof("Stream WebSocket connected: %s", conn.RemoteAddr())

	events, unsubscribe := broadcaster.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logClose(logger, err)
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Infof("Stream WebSocket disconnected: %s", conn.RemoteAddr())
			return
		case payload := <-events:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logClose(logger, err)
				// Unblock the reader so it exits before the handler returns.
				conn.Close()
				<-closed
				logger.Infof("Stream WebSocket disconnected: %s", conn.RemoteAddr())
				return
			}
		}
	}
}

func logClose(logger customlog.Logger, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		logger.Errorf("Stream WS error: %v", err)
		return
	}
	// Don't log normal closures as errors
	if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
		logger.Infof("Stream WS connection closed: %v", err)
	} else {
		logger.Infof("Stream WS connection closed normally.")
	}
}
