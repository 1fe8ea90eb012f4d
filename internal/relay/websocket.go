package relay

import (
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"live-translation-relay/internal/engine"
)

// HandleSpeaker owns one speaker connection: it attaches a recognition
// session to the room, forwards binary PCM frames into it, and detaches on
// disconnect. The server sends no payload on this channel; the socket is
// closed when the session ends.
func (g *Registry) HandleSpeaker(conn *websocket.Conn, roomID string) {
	sess, err := g.AttachSpeaker(roomID, func() {
		// Session ended (detach or engine cancellation): close the socket so
		// the read loop below unblocks.
		conn.Close()
	})
	if err != nil {
		log.Printf("Speaker attach to room %q failed: %v", roomID, err)
		reason := "session start failed"
		switch {
		case errors.Is(err, ErrSpeakerActive):
			reason = "room already has a speaker"
		case errors.Is(err, engine.ErrUnavailable):
			reason = "recognition engine unavailable"
		}
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	defer func() {
		g.DetachSpeaker(roomID)
		conn.Close()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Speaker socket error in room %q: %v", roomID, err)
			}
			return
		}
		if messageType == websocket.BinaryMessage {
			sess.PushAudio(data)
		}
		// Text frames on the speaker channel are ignored.
	}
}

// HandleListener owns one listener connection: it subscribes the connection
// to a room's target language and keeps reading (and discarding) frames until
// the client goes away. Inbound frames only serve as keep-alives.
func (g *Registry) HandleListener(conn *websocket.Conn, roomID, lang string) {
	g.AttachListener(roomID, lang, conn)
	defer func() {
		g.DetachListener(roomID, lang, conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Listener socket error in room %q (%s): %v", roomID, lang, err)
			}
			return
		}
	}
}
