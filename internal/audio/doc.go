// Package audio decodes base64 PCM payloads into int16 samples.
// Payloads are raw mono PCM-16 little-endian; no container headers are parsed
// and durations are computed at the fixed 4000 Hz sample rate.
package audio
