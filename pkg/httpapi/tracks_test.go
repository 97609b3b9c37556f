package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
)

const trackID = "0b6e6f14-3a18-4b7d-9d2e-f5a8c9b0d1e2"

func listTrack(i int) catalog.Track {
	return catalog.Track{
		ID:          fmt.Sprintf("%08d-0000-4000-8000-000000000000", i),
		Title:       fmt.Sprintf("track %d", i),
		Artist:      "artist",
		DurationSec: 120,
		IngestedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

// seedAudioTrack registers one track plus its archived bytes. The content
// is a deterministic ramp so range assertions can compare slices.
func seedAudioTrack(e *env, size int) (*catalog.Track, []byte) {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i)
	}
	t := &catalog.Track{
		ID:           trackID,
		Title:        "Seeded",
		SourceFormat: "mp3",
		SHA256:       "0f1e2d3c4b5a69788796a5b4c3d2e1f0",
		SizeBytes:    int64(size),
		StoragePath:  "raw/0f/0f1e2d3c4b5a69788796a5b4c3d2e1f0.mp3",
		IngestedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	e.tracks.rows[t.ID] = t
	e.blobs.files[t.StoragePath] = content
	return t, content
}

func TestTracksListing(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	e.tracks.list = []catalog.Track{listTrack(4), listTrack(5), listTrack(6)}
	e.tracks.total = 7

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?page=2&pageSize=3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if e.tracks.gotPage != 2 || e.tracks.gotSize != 3 {
		t.Errorf("catalog queried with (%d, %d), want (2, 3)", e.tracks.gotPage, e.tracks.gotSize)
	}

	var resp struct {
		Data []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"data"`
		Pagination pageMeta `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("data length = %d, want 3", len(resp.Data))
	}
	want := pageMeta{Page: 2, PageSize: 3, TotalItems: 7, TotalPages: 3}
	if resp.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", resp.Pagination, want)
	}
	if resp.Data[0].Title != "track 4" {
		t.Errorf("data[0].title = %q, want catalog order preserved", resp.Data[0].Title)
	}
}

func TestTracksListingCamelCaseKeys(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil))

	body := rec.Body.String()
	for _, key := range []string{`"page"`, `"pageSize"`, `"totalItems"`, `"totalPages"`} {
		if !strings.Contains(body, key) {
			t.Errorf("body is missing pagination key %s: %s", key, body)
		}
	}
	if !strings.Contains(body, `"data":[]`) {
		t.Errorf("empty listing not serialized as []: %s", body)
	}
}

func TestTracksListingDefaultsAndClamps(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantPage int
		wantSize int
	}{
		{"defaults", "", 1, 50},
		{"page below one", "?page=0", 1, 50},
		{"negative page", "?page=-4", 1, 50},
		{"size above cap", "?pageSize=500", 1, 100},
		{"size below one", "?pageSize=0", 1, 1},
		{"both explicit", "?page=3&pageSize=25", 3, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{AdminKey: adminKey})
			rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks"+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if e.tracks.gotPage != tt.wantPage || e.tracks.gotSize != tt.wantSize {
				t.Errorf("catalog queried with (%d, %d), want (%d, %d)",
					e.tracks.gotPage, e.tracks.gotSize, tt.wantPage, tt.wantSize)
			}
		})
	}
}

func TestTracksListingRejectsNonNumericParams(t *testing.T) {
	for _, query := range []string{"?page=abc", "?pageSize=lots"} {
		e := newEnv(t, Config{AdminKey: adminKey})
		rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks"+query, nil))
		wantError(t, rec, http.StatusUnprocessableEntity, codeValidation)
	}
}

func TestTracksListingSearchTrimmed(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})

	e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks?search=+lullaby+", nil))

	if e.tracks.gotQuery != "lullaby" {
		t.Errorf("search forwarded as %q, want %q", e.tracks.gotQuery, "lullaby")
	}
}

func TestTrackDetail(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	tr, _ := seedAudioTrack(e, 1000)
	tr.OlafIndexed = true
	tr.EmbeddingModel = "clap-v1"
	tr.EmbeddingDim = 512

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+trackID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var resp trackDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != trackID || resp.SHA256 != tr.SHA256 || !resp.OlafIndexed {
		t.Errorf("detail = %+v", resp)
	}
	if resp.EmbeddingModel != "clap-v1" || resp.EmbeddingDim != 512 {
		t.Errorf("embedding fields = %q/%d", resp.EmbeddingModel, resp.EmbeddingDim)
	}

	// The archive location is internal and must never leak.
	if strings.Contains(rec.Body.String(), tr.StoragePath) {
		t.Errorf("storage path leaked: %s", rec.Body.String())
	}
}

func TestTrackDetailNotFound(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+trackID, nil))

	wantError(t, rec, http.StatusNotFound, codeNotFound)
}

func TestTrackInvalidID(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})

	for _, path := range []string{"/api/v1/tracks/not-a-uuid", "/api/v1/tracks/not-a-uuid/audio"} {
		rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
		wantError(t, rec, http.StatusUnprocessableEntity, codeValidation)
	}
}

// ---

func audioRequest(rangeHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracks/"+trackID+"/audio", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return req
}

func TestTrackAudioFullFile(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	tr, content := seedAudioTrack(e, 10000)

	rec := e.do(audioRequest(""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	h := rec.Header()
	if got := h.Get("Content-Length"); got != "10000" {
		t.Errorf("Content-Length = %q", got)
	}
	if got := h.Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := h.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("Content-Disposition"); got != "inline" {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := h.Get("ETag"); got != `"`+tr.SHA256+`"` {
		t.Errorf("ETag = %q", got)
	}
	if h.Get("Last-Modified") == "" {
		t.Errorf("Last-Modified missing")
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Errorf("body differs from archived content")
	}
}

func TestTrackAudioRange(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	_, content := seedAudioTrack(e, 10000)

	rec := e.do(audioRequest("bytes=1000-1999"))

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 1000-1999/10000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), content[1000:2000]) {
		t.Errorf("body is not bytes 1000..1999 of the source")
	}
}

func TestTrackAudioRangeVariants(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantRange string
		wantLen   string
	}{
		{"first byte", "bytes=0-0", "bytes 0-0/10000", "1"},
		{"suffix", "bytes=-500", "bytes 9500-9999/10000", "500"},
		{"open ended", "bytes=9000-", "bytes 9000-9999/10000", "1000"},
		{"end clamped", "bytes=9990-20000", "bytes 9990-9999/10000", "10"},
		{"suffix longer than file", "bytes=-20000", "bytes 0-9999/10000", "10000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{AdminKey: adminKey})
			seedAudioTrack(e, 10000)

			rec := e.do(audioRequest(tt.header))

			if rec.Code != http.StatusPartialContent {
				t.Fatalf("status = %d, want 206 (body %q)", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
			if got := rec.Header().Get("Content-Length"); got != tt.wantLen {
				t.Errorf("Content-Length = %q, want %q", got, tt.wantLen)
			}
		})
	}
}

func TestTrackAudioRangeUnsatisfiable(t *testing.T) {
	for _, header := range []string{"bytes=10000-", "bytes=99999-100000", "bytes=-0"} {
		t.Run(header, func(t *testing.T) {
			e := newEnv(t, Config{AdminKey: adminKey})
			seedAudioTrack(e, 10000)

			rec := e.do(audioRequest(header))

			if rec.Code != http.StatusRequestedRangeNotSatisfiable {
				t.Fatalf("status = %d, want 416", rec.Code)
			}
			if got := rec.Header().Get("Content-Range"); got != "bytes */10000" {
				t.Errorf("Content-Range = %q, want bytes */10000", got)
			}
		})
	}
}

func TestTrackAudioIgnoredRanges(t *testing.T) {
	// Multi-range and malformed headers downgrade to the whole file.
	for _, header := range []string{"bytes=0-1,5-6", "bytes=5-2", "items=0-5", "bytes=x-y"} {
		t.Run(header, func(t *testing.T) {
			e := newEnv(t, Config{AdminKey: adminKey})
			seedAudioTrack(e, 10000)

			rec := e.do(audioRequest(header))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Content-Length"); got != "10000" {
				t.Errorf("Content-Length = %q, want 10000", got)
			}
		})
	}
}

func TestTrackAudioMissingFile(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	tr, _ := seedAudioTrack(e, 10000)
	delete(e.blobs.files, tr.StoragePath)

	rec := e.do(audioRequest(""))

	apiErr := wantError(t, rec, http.StatusNotFound, codeFileNotFound)
	if strings.Contains(apiErr.Message, tr.StoragePath) {
		t.Errorf("storage path leaked in %q", apiErr.Message)
	}
}

func TestTrackAudioNotModified(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	tr, _ := seedAudioTrack(e, 10000)

	for _, inm := range []string{
		`"` + tr.SHA256 + `"`,
		`W/"` + tr.SHA256 + `"`,
		`"other", "` + tr.SHA256 + `"`,
		"*",
	} {
		req := audioRequest("")
		req.Header.Set("If-None-Match", inm)
		rec := e.do(req)

		if rec.Code != http.StatusNotModified {
			t.Errorf("If-None-Match %q: status = %d, want 304", inm, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("If-None-Match %q: body not empty", inm)
		}
	}

	req := audioRequest("")
	req.Header.Set("If-None-Match", `"different"`)
	if rec := e.do(req); rec.Code != http.StatusOK {
		t.Errorf("non-matching If-None-Match: status = %d, want 200", rec.Code)
	}
}

func TestTrackAudioContentTypeFallsBackToPath(t *testing.T) {
	e := newEnv(t, Config{AdminKey: adminKey})
	tr, content := seedAudioTrack(e, 100)
	tr.SourceFormat = ""
	tr.StoragePath = "raw/ab/abcd.wav"
	e.blobs.files[tr.StoragePath] = content

	rec := e.do(audioRequest(""))

	if got := rec.Header().Get("Content-Type"); got != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", got)
	}
}

// ---

func TestParseRange(t *testing.T) {
	tests := []struct {
		header    string
		size      int64
		wantStart int64
		wantLen   int64
		partial   bool
		wantErr   bool
	}{
		{"", 100, 0, 0, false, false},
		{"bytes=0-49", 100, 0, 50, true, false},
		{"bytes=50-", 100, 50, 50, true, false},
		{"bytes=-10", 100, 90, 10, true, false},
		{"bytes=-200", 100, 0, 100, true, false},
		{"bytes=0-199", 100, 0, 100, true, false},
		{"bytes=99-99", 100, 99, 1, true, false},
		{"bytes=100-", 100, 0, 0, false, true},
		{"bytes=-0", 100, 0, 0, false, true},
		{"bytes=5-2", 100, 0, 0, false, false},
		{"bytes=0-1,5-6", 100, 0, 0, false, false},
		{"cats=0-5", 100, 0, 0, false, false},
		{"bytes=x-y", 100, 0, 0, false, false},
		{"bytes=-x", 100, 0, 0, false, false},
	}
	for _, tt := range tests {
		start, length, partial, err := parseRange(tt.header, tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRange(%q, %d) error = %v, wantErr %v", tt.header, tt.size, err, tt.wantErr)
			continue
		}
		if partial != tt.partial || start != tt.wantStart || length != tt.wantLen {
			t.Errorf("parseRange(%q, %d) = (%d, %d, %v), want (%d, %d, %v)",
				tt.header, tt.size, start, length, partial, tt.wantStart, tt.wantLen, tt.partial)
		}
	}
}

func TestETagMatch(t *testing.T) {
	etag := `"abc123"`
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc123"`, true},
		{`W/"abc123"`, true},
		{`"zzz", "abc123"`, true},
		{`*`, true},
		{`"abc"`, false},
		{`abc123`, false},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.header, etag); got != tt.want {
			t.Errorf("etagMatch(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
