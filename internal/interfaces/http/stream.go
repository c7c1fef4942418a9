package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const streamWriteWait = 10 * time.Second

// stream answers evaluation frames for one model over a websocket. Each
// text frame holds an EvalRequest with op set to joint or conditional and
// is answered by an EvalResponse or a StreamError.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		w.Header().Set("Content-Type", "application/json")
		s.fail(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		s.logger.Debug().Err(err).Str("request_id", requestID(r.Context())).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)
	// the server timeouts must not cut a long-lived stream
	conn.SetReadDeadline(time.Time{})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Str("model_id", id).Msg("stream closed")
			}
			return
		}

		var reply interface{}
		var req EvalRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			reply = StreamError{Error: "invalid JSON frame: " + err.Error(), Code: "bad_request"}
		} else if out, err := s.eval(r, id, req.Op, req); err != nil {
			_, code := classify(err)
			reply = StreamError{Error: err.Error(), Code: code, Tag: req.Tag}
		} else {
			reply = EvalResponse{ModelID: id, Op: req.Op, Values: Operand{Value: out, set: true}, Tag: req.Tag}
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug().Err(err).Str("model_id", id).Msg("stream write failed")
			}
			return
		}
	}
}
