package relay

import (
	"log"
	"strings"

	"live-translation-relay/internal/engine"
)

// pump consumes one session's event stream and applies each event to room
// state in arrival order. It is the re-marshal point between the engine's
// goroutines and the room: all mutation happens here under the room mutex,
// never on an engine callback path. The loop ends when the session closes its
// channel (Stop or engine-side cancellation).
func (g *Registry) pump(room *Room, sess engine.Session) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case engine.EventPartial:
			g.handlePartial(room, sess, ev.Text)
		case engine.EventFinal:
			g.handleFinal(room, sess, ev.Text, ev.Translations)
		case engine.EventNoMatch:
			log.Printf("Room %q: no speech recognized in window", room.id)
		case engine.EventCanceled:
			log.Printf("Room %q: recognition canceled by engine: %s", room.id, ev.Reason)
		}
	}

	// Session is over. If the speaker is still attached (engine-side
	// cancellation), tear down room state the same way a detach would.
	room.mu.Lock()
	ended := room.endSessionLocked(sess)
	room.mu.Unlock()
	if ended != nil {
		ended.Stop()
		log.Printf("Room %q: session ended by engine", room.id)
	}
}

// handlePartial logs the in-progress result and, only when partial relaying
// is enabled, forwards it to every listener regardless of language.
func (g *Registry) handlePartial(room *Room, sess engine.Session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	log.Printf("Room %q partial: %s", room.id, text)
	if !g.relayPartials {
		return
	}

	room.mu.Lock()
	if room.activeSession != sess {
		room.mu.Unlock()
		return
	}
	targets := g.collectListenersLocked(room)
	room.mu.Unlock()

	payload := PartialCaption{PartialText: text}
	for _, t := range targets {
		g.deliver(room, t.lang, t.conn, payload)
	}
}

// handleFinal applies the dedup cursor, appends transcript history and fans
// the segment out to the listeners of each translated language.
func (g *Registry) handleFinal(room *Room, sess engine.Session, text string, translations map[string]string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	room.mu.Lock()
	if room.activeSession != sess {
		// Session was torn down while this event was in flight; the cursor
		// is already cleared and nothing may be fanned out.
		room.mu.Unlock()
		return
	}
	if text == room.lastFinalText {
		room.mu.Unlock()
		log.Printf("Room %q: suppressed duplicate final: %s", room.id, text)
		return
	}
	room.lastFinalText = text
	room.transcriptOriginal = append(room.transcriptOriginal, text)

	mode := room.storageMode
	type fanout struct {
		lang  string
		text  string
		conns []Conn
	}
	fanouts := make([]fanout, 0, len(translations))
	for lang, translated := range translations {
		if translated == "" {
			continue
		}
		room.transcriptByLanguage[lang] = append(room.transcriptByLanguage[lang], translated)
		conns := make([]Conn, 0, len(room.listeners[lang]))
		for c := range room.listeners[lang] {
			conns = append(conns, c)
		}
		fanouts = append(fanouts, fanout{lang: lang, text: translated, conns: conns})
	}
	room.mu.Unlock()

	if g.archive != nil && mode == StorageArchive {
		g.archiveSegment(room.id, "", text)
		for _, f := range fanouts {
			g.archiveSegment(room.id, f.lang, f.text)
		}
	}

	for _, f := range fanouts {
		payload := Caption{OriginalText: text, TranslatedText: f.text, AudioURL: ""}
		for _, c := range f.conns {
			g.deliver(room, f.lang, c, payload)
		}
	}
}

type listenerRef struct {
	lang string
	conn Conn
}

// collectListenersLocked snapshots every listener connection. Caller holds
// the room mutex.
func (g *Registry) collectListenersLocked(room *Room) []listenerRef {
	refs := make([]listenerRef, 0)
	for lang, set := range room.listeners {
		for c := range set {
			refs = append(refs, listenerRef{lang: lang, conn: c})
		}
	}
	return refs
}

// deliver writes one payload to one listener. A failed send prunes that
// connection only; other deliveries are unaffected.
func (g *Registry) deliver(room *Room, lang string, c Conn, payload interface{}) {
	if err := c.WriteJSON(payload); err != nil {
		log.Printf("Room %q: dropping listener (%s): %v", room.id, lang, err)
		g.DetachListener(room.id, lang, c)
		_ = c.Close()
	}
}

func (g *Registry) archiveSegment(roomID, lang, text string) {
	if err := g.archive.SaveSegment(roomID, lang, text); err != nil {
		log.Printf("Room %q: archive segment failed (lang=%q): %v", roomID, lang, err)
	}
}
