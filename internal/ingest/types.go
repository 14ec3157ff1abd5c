package ingest

import "fmt"

// AudioFile is one uploaded clip
type AudioFile struct {
	FileName     string `json:"file_name"`
	EncodedAudio string `json:"encoded_audio"`
}

// Batch is one request's session metadata plus its audio files
type Batch struct {
	SessionID  string      `json:"session_id"`
	Timestamp  string      `json:"timestamp"`
	AudioFiles []AudioFile `json:"audio_files"`
}

// ProcessedFile is reported for every file that was decoded and stored
type ProcessedFile struct {
	FileName      string  `json:"file_name"`
	LengthSeconds float64 `json:"length_seconds"`
}

// Skip stages
const (
	StageDecode = "decode"
	StageStore  = "store"
)

// SkippedFile is reported for every file dropped within an accepted batch
type SkippedFile struct {
	FileName string `json:"file_name"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// StatusSuccess is the status of every accepted batch, whatever its per-file outcome
const StatusSuccess = "success"

// Result summarizes an accepted batch
type Result struct {
	Status         string          `json:"status"`
	ProcessedFiles []ProcessedFile `json:"processed_files"`
	SkippedFiles   []SkippedFile   `json:"skipped_files"`
}

// Validation failure reasons, returned verbatim to clients
const (
	ReasonNoFiles          = "No audio files provided!"
	ReasonInvalidTimestamp = "Invalid timestamp format!"
	ReasonInvalidBase64    = "Invalid base64 encoding file!"
)

// ValidationError rejects a whole batch
type ValidationError struct {
	Reason   string
	FileName string // set for base64 failures
}

func (e *ValidationError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("%s (file %s)", e.Reason, e.FileName)
	}
	return e.Reason
}
