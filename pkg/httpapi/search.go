package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
	"github.com/MacPhobos/audio-ident-sub000/pkg/decode"
	"github.com/MacPhobos/audio-ident-sub000/pkg/search"
)

// minQuerySeconds is the shortest post-decode query the lanes accept.
const minQuerySeconds = 3.0

// maxResultsLimit caps the max_results form field.
const maxResultsLimit = 50

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	data, _, err := readUpload(w, r, maxSearchUpload)
	if err != nil {
		writeUploadError(w, err, maxSearchUpload)
		return
	}

	mode, err := search.ParseMode(r.FormValue("mode"))
	if err != nil {
		writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
			"mode must be one of exact, vibe, both", "mode")
		return
	}
	maxResults := search.DefaultMaxResults
	if v := r.FormValue("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxResultsLimit {
			writeFieldError(w, http.StatusUnprocessableEntity, codeValidation,
				fmt.Sprintf("max_results must be an integer in [1,%d]", maxResultsLimit), "max_results")
			return
		}
		maxResults = n
	}

	format := DetectFormat(data)
	if format == "" {
		writeError(w, http.StatusBadRequest, codeUnsupportedFormat,
			"unrecognized audio format")
		return
	}

	ctx := r.Context()
	pcm16, pcm48, err := s.decoder.DecodeDualRate(ctx, data, decode.DemuxerHint(format))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Client went away mid-decode; nothing useful to send.
		case errors.Is(err, decode.ErrFFmpegNotFound):
			s.log.Error("decoder unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "decoder unavailable")
		default:
			writeError(w, http.StatusUnprocessableEntity, codeDecodeFailed,
				"could not decode audio")
		}
		return
	}
	if sec := audio.F32Mono16K.Seconds(len(pcm16)); sec < minQuerySeconds {
		writeError(w, http.StatusBadRequest, codeAudioTooShort,
			fmt.Sprintf("audio too short: %.1fs (minimum %.0fs)", sec, minQuerySeconds))
		return
	}

	resp, err := s.searcher.Search(ctx, pcm16, pcm48, mode, maxResults)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Client went away mid-search.
		case errors.Is(err, search.ErrTimeout):
			writeError(w, http.StatusGatewayTimeout, codeSearchTimeout, "search timed out")
		case errors.Is(err, search.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, codeUnavailable,
				"search backends unavailable")
		default:
			s.log.Error("search failed", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
