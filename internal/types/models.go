package types

import "time"

type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

type URLKind string

const (
	URLGeneric     URLKind = "generic"
	URLHostedShare URLKind = "hosted-share"
)

// SourceReference is either a remote URL or an upload already saved to disk.
// For hosted-share URLs, FileID is always set and ResolvedURL is the direct
// download link derived from it.
type SourceReference struct {
	Kind        SourceKind `json:"kind"`
	RawURL      string     `json:"raw_url,omitempty"`
	URLKind     URLKind    `json:"url_kind,omitempty"`
	FileID      string     `json:"file_id,omitempty"`
	ResolvedURL string     `json:"resolved_url,omitempty"`
	LocalPath   string     `json:"local_path,omitempty"`
}

// RetrievedMedia is the video container owned by one run.
type RetrievedMedia struct {
	Path   string
	Size   int64
	Origin SourceReference
}

// ExtractedAudio is the waveform derived from one RetrievedMedia.
type ExtractedAudio struct {
	Path string
	Size int64
}

type AccentClassification struct {
	Accent     string  `json:"accent"`
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// Failure describes why a run stopped.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// PipelineResult is the terminal value of a run: exactly one of
// Classification and Failure is set.
type PipelineResult struct {
	Classification *AccentClassification `json:"classification,omitempty"`
	Failure        *Failure              `json:"failure,omitempty"`
	Summary        string                `json:"summary,omitempty"`
	Duration       time.Duration         `json:"-"`
}

func (r PipelineResult) Succeeded() bool {
	return r.Classification != nil && r.Failure == nil
}

// VideoRecord is one row of a batch input sheet.
type VideoRecord struct {
	RowID    string `json:"row_id"`
	VideoURL string `json:"video_url"`
	Speaker  string `json:"speaker,omitempty"`
}
