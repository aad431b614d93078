package disfluency

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
)

// CountResponse is the wire body of both GET and POST /disfluency.
type CountResponse struct {
	Count int `json:"count"`
}

// Handler exposes the ledger over HTTP: GET reads the count, POST adds
// exactly one and returns the new value. POST is not idempotent.
func Handler(l *Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, CountResponse{Count: l.Count()})
		case http.MethodPost:
			n := l.Increment()
			logger.Debug("Disfluency", "Event received from %s (count=%d)", r.RemoteAddr, n)
			writeJSON(w, CountResponse{Count: n})
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
