package httpapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MacPhobos/audio-ident-sub000/pkg/ingest"
)

// adminKeyHeader authenticates ingest requests.
const adminKeyHeader = "X-Admin-Key"

type ingestResponse struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	Status  string `json:"status"`
}

// authorize checks the admin key, failing closed: with no key configured
// every request is rejected, and a wrong or missing header never reveals
// which it was. The comparison is constant-time.
func (s *Server) authorize(r *http.Request) (code, message string, ok bool) {
	if s.cfg.AdminKey == "" {
		return codeAuthNotConfigured, "admin access is not configured", false
	}
	got := r.Header.Get(adminKeyHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminKey)) != 1 {
		return codeForbidden, "invalid admin key", false
	}
	return "", "", true
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if code, msg, ok := s.authorize(r); !ok {
		writeError(w, http.StatusForbidden, code, msg)
		return
	}

	data, filename, err := readUpload(w, r, maxIngestUpload)
	if err != nil {
		writeUploadError(w, err, maxIngestUpload)
		return
	}
	if DetectFormat(data) == "" {
		writeError(w, http.StatusBadRequest, codeUnsupportedFormat,
			"unrecognized audio format")
		return
	}

	res, err := s.ingester.TryIngest(r.Context(), filename, data)
	if err != nil {
		if errors.Is(err, ingest.ErrBusy) {
			writeError(w, http.StatusTooManyRequests, codeRateLimited,
				"another ingestion is in progress")
			return
		}
		s.log.Error("ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	switch res := res.(type) {
	case ingest.Ingested:
		writeJSON(w, http.StatusCreated, ingestResponse{
			TrackID: res.TrackID, Title: res.Title, Artist: res.Artist, Status: "ingested",
		})
	case ingest.Duplicate:
		writeJSON(w, http.StatusCreated, ingestResponse{
			TrackID: res.TrackID, Title: res.Title, Artist: res.Artist, Status: "duplicate",
		})
	case ingest.Skipped:
		switch res.Reason {
		case ingest.ReasonTooShort:
			writeError(w, http.StatusBadRequest, codeAudioTooShort,
				fmt.Sprintf("audio too short: %.1fs (minimum %.0fs)", res.DurationSec, ingest.MinDurationSec))
		case ingest.ReasonTooLong:
			writeError(w, http.StatusBadRequest, codeAudioTooLong,
				fmt.Sprintf("audio too long: %.1fs (maximum %.0fs)", res.DurationSec, ingest.MaxDurationSec))
		default:
			writeError(w, http.StatusBadRequest, codeValidation, "audio rejected: "+res.Reason)
		}
	case ingest.Errored:
		// A decode-stage failure means the upload itself is bad; anything
		// later is an infrastructure problem.
		if strings.HasPrefix(res.Message, "decode:") {
			writeError(w, http.StatusBadRequest, codeUnsupportedFormat, res.Message)
			return
		}
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, res.Message)
	default:
		s.log.Error("unhandled ingest result", "type", fmt.Sprintf("%T", res))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
