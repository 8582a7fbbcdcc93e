package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// handleHealth handles health check requests. It reports unhealthy when a
// database stops answering pings.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"service": "optionseller",
	}

	for _, db := range s.container.Databases() {
		if err := db.Conn().PingContext(r.Context()); err != nil {
			s.log.Error().Err(err).Str("database", db.Name()).Msg("Health check ping failed")
			response["status"] = "unhealthy"
			response["error"] = db.Name() + " database unavailable"
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, s.log, status, response)
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// writeData writes the standard response envelope
func writeData(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}, extra map[string]interface{}) {
	metadata := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	writeJSON(w, log, status, map[string]interface{}{
		"data":     data,
		"metadata": metadata,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	writeJSON(w, log, status, map[string]string{"error": message})
}
