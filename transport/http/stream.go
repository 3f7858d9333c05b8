package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/errors"
	"github.com/autom8ter/pagestream/transport/http/httpError"
)

// streamHandler pushes the current state and then every state change over a websocket until
// the client disconnects. A slow client skips intermediate states and receives the latest one
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		httpError.Error(w, errors.Wrap(err, errors.Validation, "failed to upgrade stream request"))
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan pagestream.State, 1)
	unsubscribe := s.engine.Subscribe(func(state pagestream.State) {
		select {
		case updates <- state:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- state
		}
	})
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-updates:
			if err := conn.WriteJSON(&state); err != nil {
				s.logger.Error(ctx, "failed to write state", err, map[string]interface{}{
					"request.path": r.URL.Path,
				})
				return
			}
		}
	}
}

// StreamClient connects to the state stream of a server
type StreamClient struct {
	serverURL string
}

// NewStreamClient returns a client for the server at the url
func NewStreamClient(serverURL string) *StreamClient {
	if strings.Contains(serverURL, "http") {
		serverURL = strings.Replace(serverURL, "http", "ws", 1)
	}
	return &StreamClient{serverURL: serverURL}
}

// Connect opens the state stream
func (c *StreamClient) Connect(header http.Header) (*StateSocket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverURL+"/query/stream", header)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to connect to state stream")
	}
	return &StateSocket{
		conn: conn,
	}, nil
}

// StateSocket is an open state stream
type StateSocket struct {
	conn *websocket.Conn
}

// Read blocks until the next state arrives
func (t *StateSocket) Read(ctx context.Context) (pagestream.State, error) {
	if ctx.Err() != nil {
		return pagestream.State{}, ctx.Err()
	}
	var state pagestream.State
	if err := t.conn.ReadJSON(&state); err != nil {
		return pagestream.State{}, err
	}
	return state, nil
}

// Close closes the stream
func (t *StateSocket) Close() error {
	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
