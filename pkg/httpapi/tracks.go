package httpapi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/search"
)

// Listing defaults. pageSize is clamped to [1, maxPageSize], page to >= 1.
const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// pageMeta uses camelCase keys on the wire, unlike the rest of the API.
type pageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int64 `json:"totalPages"`
}

type trackPage struct {
	Data       []search.TrackInfo `json:"data"`
	Pagination pageMeta           `json:"pagination"`
}

// trackDetail is the full catalog record minus internal storage fields.
type trackDetail struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Artist         string    `json:"artist,omitempty"`
	Album          string    `json:"album,omitempty"`
	DurationSec    float64   `json:"duration_sec"`
	SampleRate     int       `json:"sample_rate,omitempty"`
	Channels       int       `json:"channels,omitempty"`
	Bitrate        int       `json:"bitrate,omitempty"`
	Format         string    `json:"format,omitempty"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	OlafIndexed    bool      `json:"olaf_indexed"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	EmbeddingDim   int       `json:"embedding_dim,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
				"page must be an integer", "page")
			return
		}
		if n > 1 {
			page = n
		}
	}
	pageSize := defaultPageSize
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
				"pageSize must be an integer", "pageSize")
			return
		}
		pageSize = min(max(n, 1), maxPageSize)
	}
	query := strings.TrimSpace(q.Get("search"))

	rows, total, err := s.tracks.List(r.Context(), page, pageSize, query)
	if err != nil {
		s.log.Error("track listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	data := make([]search.TrackInfo, 0, len(rows))
	for i := range rows {
		data = append(data, search.NewTrackInfo(&rows[i]))
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	writeJSON(w, http.StatusOK, trackPage{
		Data: data,
		Pagination: pageMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	})
}

// getTrack resolves the {id} path segment; on failure the response has
// already been written.
func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) (*catalog.Track, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
			"track id must be a UUID", "id")
		return nil, false
	}
	t, err := s.tracks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound,
				fmt.Sprintf("no track with id %s", id))
			return nil, false
		}
		s.log.Error("track lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return nil, false
	}
	return t, true
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	t, ok := s.getTrack(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trackDetail{
		ID:             t.ID,
		Title:          t.Title,
		Artist:         t.Artist,
		Album:          t.Album,
		DurationSec:    t.DurationSec,
		SampleRate:     t.SampleRate,
		Channels:       t.Channels,
		Bitrate:        t.Bitrate,
		Format:         t.SourceFormat,
		SHA256:         t.SHA256,
		SizeBytes:      t.SizeBytes,
		OlafIndexed:    t.OlafIndexed,
		EmbeddingModel: t.EmbeddingModel,
		EmbeddingDim:   t.EmbeddingDim,
		IngestedAt:     t.IngestedAt,
		UpdatedAt:      t.UpdatedAt,
	})
}

func (s *Server) handleTrackAudio(w http.ResponseWriter, r *http.Request) {
	t, ok := s.getTrack(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	size, err := s.blobs.Size(ctx, t.StoragePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, codeFileNotFound, "stored audio file is missing")
			return
		}
		s.log.Error("blob stat failed", "track_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	etag := `"` + t.SHA256 + `"`
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentTypeFor(storedFormat(t)))
	h.Set("Content-Disposition", "inline")
	h.Set("ETag", etag)
	h.Set("Last-Modified", t.IngestedAt.UTC().Format(http.TimeFormat))

	if inm := r.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	start, length, partial, err := parseRange(r.Header.Get("Range"), size)
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeError(w, http.StatusRequestedRangeNotSatisfiable, codeBadRange,
			"requested range not satisfiable")
		return
	}

	var rc io.ReadCloser
	if partial {
		rc, err = s.blobs.OpenRange(ctx, t.StoragePath, start, length)
	} else {
		start, length = 0, size
		rc, err = s.blobs.Open(ctx, t.StoragePath)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, codeFileNotFound, "stored audio file is missing")
			return
		}
		s.log.Error("blob open failed", "track_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}
	defer rc.Close()

	h.Set("Content-Length", strconv.FormatInt(length, 10))
	if partial {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, size))
		w.WriteHeader(http.StatusPartialContent)
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("audio stream interrupted", "track_id", t.ID, "error", err)
	}
}

// storedFormat falls back to the archive path extension for records
// predating the source format column.
func storedFormat(t *catalog.Track) string {
	if t.SourceFormat != "" {
		return t.SourceFormat
	}
	return strings.TrimPrefix(filepath.Ext(t.StoragePath), ".")
}

// errBadRange marks an unsatisfiable range (RFC 9110: first byte past the
// end, or an empty suffix).
var errBadRange = errors.New("httpapi: range not satisfiable")

// parseRange interprets a single byte range against size. partial=false
// means the header is absent or malformed and the whole file should be
// served; errBadRange means 416. Multi-range requests are served whole.
func parseRange(header string, size int64) (start, length int64, partial bool, err error) {
	if header == "" {
		return 0, 0, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return 0, 0, false, nil
	}

	if first == "" {
		// Suffix form: the final n bytes.
		n, perr := strconv.ParseInt(last, 10, 64)
		if perr != nil || n < 0 {
			return 0, 0, false, nil
		}
		if n == 0 {
			return 0, 0, false, errBadRange
		}
		if n > size {
			n = size
		}
		return size - n, n, true, nil
	}

	lo, perr := strconv.ParseInt(first, 10, 64)
	if perr != nil || lo < 0 {
		return 0, 0, false, nil
	}
	if lo >= size {
		return 0, 0, false, errBadRange
	}
	if last == "" {
		return lo, size - lo, true, nil
	}
	hi, perr := strconv.ParseInt(last, 10, 64)
	if perr != nil || hi < lo {
		return 0, 0, false, nil
	}
	if hi >= size {
		hi = size - 1
	}
	return lo, hi - lo + 1, true, nil
}

// etagMatch reports whether an If-None-Match value matches etag. Weak
// comparison is fine for a content-hash tag.
func etagMatch(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, c := range strings.Split(header, ",") {
		c = strings.TrimPrefix(strings.TrimSpace(c), "W/")
		if c == etag {
			return true
		}
	}
	return false
}
