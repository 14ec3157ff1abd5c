package server

import (
	"errors"
	"fmt"

	"github.com/skypro1111/audio-ingest-service/internal/ingest"
)

var errMissingField = errors.New("missing required field")

// processAudioRequest mirrors ingest.Batch with pointer fields so absent
// keys can be told apart from empty values
type processAudioRequest struct {
	SessionID  *string            `json:"session_id"`
	Timestamp  *string            `json:"timestamp"`
	AudioFiles []audioFileRequest `json:"audio_files"`
}

type audioFileRequest struct {
	FileName     *string `json:"file_name"`
	EncodedAudio *string `json:"encoded_audio"`
}

// toBatch checks field presence and converts the request. An empty
// audio_files list is passed through so the validator can reject it with
// its own reason; a missing or null list is a malformed body.
func (r *processAudioRequest) toBatch() (ingest.Batch, error) {
	if r.SessionID == nil {
		return ingest.Batch{}, fmt.Errorf("%w: session_id", errMissingField)
	}
	if r.Timestamp == nil {
		return ingest.Batch{}, fmt.Errorf("%w: timestamp", errMissingField)
	}
	if r.AudioFiles == nil {
		return ingest.Batch{}, fmt.Errorf("%w: audio_files", errMissingField)
	}

	batch := ingest.Batch{
		SessionID:  *r.SessionID,
		Timestamp:  *r.Timestamp,
		AudioFiles: make([]ingest.AudioFile, 0, len(r.AudioFiles)),
	}

	for i, file := range r.AudioFiles {
		if file.FileName == nil || *file.FileName == "" {
			return ingest.Batch{}, fmt.Errorf("%w: audio_files[%d].file_name", errMissingField, i)
		}
		if file.EncodedAudio == nil {
			return ingest.Batch{}, fmt.Errorf("%w: audio_files[%d].encoded_audio", errMissingField, i)
		}
		batch.AudioFiles = append(batch.AudioFiles, ingest.AudioFile{
			FileName:     *file.FileName,
			EncodedAudio: *file.EncodedAudio,
		})
	}

	return batch, nil
}
