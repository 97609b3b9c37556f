package httpapi

import "net/http"

// serviceName is reported by GET /version.
const serviceName = "audio-ident"

type versionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// handleHealth is pure liveness: once the process serves requests it
// answers 200. Dependency readiness is checked at startup, not here.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{Name: serviceName, Version: s.cfg.Version})
}
