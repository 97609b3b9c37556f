package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Upload caps. The body reader gets a little slack on top so multipart
// framing does not reject a payload sitting exactly at the cap.
const (
	maxSearchUpload = 10 << 20
	maxIngestUpload = 50 << 20
	formOverhead    = 1 << 20
)

var (
	errNoFile       = errors.New("httpapi: audio form field missing")
	errEmptyFile    = errors.New("httpapi: uploaded file is empty")
	errFileTooLarge = errors.New("httpapi: uploaded file too large")
)

// readUpload pulls the "audio" part out of a multipart form, enforcing
// maxBytes on the file itself. The part's declared Content-Type is
// ignored; callers sniff the payload instead.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (data []byte, filename string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(maxBytes + formOverhead); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, "", errFileTooLarge
		}
		return nil, "", errNoFile
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", errNoFile
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("httpapi: read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, "", errEmptyFile
	case int64(len(data)) > maxBytes:
		return nil, "", errFileTooLarge
	}
	return data, header.Filename, nil
}

// writeUploadError maps a readUpload failure onto the wire contract.
// Emptiness is checked before size so a zero-byte file is reported as
// empty, not oversized.
func writeUploadError(w http.ResponseWriter, err error, maxBytes int64) {
	switch {
	case errors.Is(err, errEmptyFile):
		writeError(w, http.StatusBadRequest, codeEmptyFile, "uploaded file is empty")
	case errors.Is(err, errFileTooLarge):
		writeError(w, http.StatusBadRequest, codeFileTooLarge,
			fmt.Sprintf("uploaded file exceeds the %d MiB limit", maxBytes>>20))
	case errors.Is(err, errNoFile):
		writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
			"multipart field \"audio\" is required", "audio")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
