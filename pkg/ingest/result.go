package ingest

// Duplicate.Via values.
const (
	ViaHash       = "hash"
	ViaPerceptual = "perceptual"
)

// Skipped.Reason values.
const (
	ReasonTooShort = "too_short"
	ReasonTooLong  = "too_long"
)

// Result is the outcome of one ingestion attempt. Exactly one of the
// concrete variants below is returned; callers switch on the type.
type Result interface {
	ingestResult()
}

// Ingested reports a newly cataloged track.
type Ingested struct {
	TrackID     string
	Title       string
	Artist      string
	DurationSec float64
}

// Duplicate reports that the file is already in the catalog, either
// byte-identical (hash) or perceptually equivalent.
type Duplicate struct {
	TrackID string
	Title   string
	Artist  string
	Via     string
}

// Skipped reports audio outside the accepted duration bounds.
type Skipped struct {
	Reason      string
	DurationSec float64
}

// Errored reports a pipeline failure after which no track was cataloged.
type Errored struct {
	Message string
}

func (Ingested) ingestResult()  {}
func (Duplicate) ingestResult() {}
func (Skipped) ingestResult()   {}
func (Errored) ingestResult()   {}
