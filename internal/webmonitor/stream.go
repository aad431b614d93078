package webmonitor

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
)

const (
	sseKeepalive = 30 * time.Second

	contentJSON     = "application/json"
	contentProtobuf = "application/protobuf"
)

// wantsProtobuf reports whether the Accept header lists a protobuf type.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == contentProtobuf || mt == "application/x-protobuf" {
			return true
		}
	}
	return false
}

// sseWriter frames Server-Sent Events and flushes after each one.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s sseWriter) data(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// streamStatusEventsFromChannel relays events until the client leaves or
// the broadcaster closes the channel. Idle streams get a comment line
// every sseKeepalive so proxies keep the connection open.
func streamStatusEventsFromChannel(w http.ResponseWriter, r *http.Request, eventCh <-chan *SerializedEvent, useProtobuf bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	format := contentJSON
	if useProtobuf {
		format = contentProtobuf
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Content-Format", format)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := sseWriter{w: w, f: flusher}
	idle := time.NewTimer(sseKeepalive)
	defer idle.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if useProtobuf {
				err = out.data(event.ProtobufData)
			} else {
				err = out.data(event.JSONData)
			}
		case <-idle.C:
			err = out.comment("keepalive")
		}

		if err != nil {
			logger.Debug("SSE", "Client gone: %v", err)
			return
		}
		idle.Reset(sseKeepalive)
	}
}
