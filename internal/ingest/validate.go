package ingest

import (
	"encoding/base64"
	"regexp"
)

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`)

// Validate runs the batch-level checks in order and returns the first
// failure as a *ValidationError. Every file must carry canonical base64.
func Validate(batch Batch) error {
	if len(batch.AudioFiles) == 0 {
		return &ValidationError{Reason: ReasonNoFiles}
	}

	if !ValidTimestamp(batch.Timestamp) {
		return &ValidationError{Reason: ReasonInvalidTimestamp}
	}

	for _, file := range batch.AudioFiles {
		if !CanonicalBase64(file.EncodedAudio) {
			return &ValidationError{Reason: ReasonInvalidBase64, FileName: file.FileName}
		}
	}

	return nil
}

// ValidTimestamp reports whether ts is YYYY-MM-DDTHH:MM:SS[.fraction]Z
func ValidTimestamp(ts string) bool {
	return timestampPattern.MatchString(ts)
}

// CanonicalBase64 reports whether s is the exact standard padded encoding
// of some byte sequence. Embedded newlines, missing padding, URL-safe
// characters and non-zero trailing bits are all rejected.
func CanonicalBase64(s string) bool {
	decoded, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return false
	}
	return base64.StdEncoding.EncodeToString(decoded) == s
}
