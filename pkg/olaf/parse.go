package olaf

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ParseMatches reads the tool's query output: one row per aligned segment,
// comma-separated with semicolon accepted as a fallback delimiter:
//
//	match_count, query_start, query_stop, ref_path, ref_id, ref_start, ref_stop
//
// Header rows (non-numeric first field), short rows, and rows with
// unparsable numbers are skipped.
func ParseMatches(r io.Reader) []Match {
	var out []Match
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := splitRow(line)
		if len(fields) < 7 {
			continue
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil {
			// Header row.
			continue
		}
		qStart, err1 := strconv.ParseFloat(fields[1], 64)
		qStop, err2 := strconv.ParseFloat(fields[2], 64)
		refID, err3 := strconv.Atoi(fields[4])
		rStart, err4 := strconv.ParseFloat(fields[5], 64)
		rStop, err5 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		out = append(out, Match{
			MatchCount: count,
			QueryStart: qStart,
			QueryStop:  qStop,
			TrackID:    fields[3],
			RefID:      refID,
			RefStart:   rStart,
			RefStop:    rStop,
		})
	}
	return out
}

func splitRow(line string) []string {
	sep := ","
	if !strings.Contains(line, ",") && strings.Contains(line, ";") {
		sep = ";"
	}
	fields := strings.Split(line, sep)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
