package audio

import "time"

// Utterance is one captured recording handed to the orchestrator.
type Utterance struct {
	Data []byte
	// ContentType is the MIME type of containerized audio (e.g. "audio/webm").
	// Raw PCM leaves it empty and sets Encoding instead.
	ContentType string
	Encoding    EncodingInfo
	// Duration is the recorded length when the recorder knows it.
	Duration time.Duration
}

// Length returns the best known duration of the utterance. Raw PCM is
// measured from its byte count; containerized audio without an explicit
// duration reports 0 and ok=false.
func (u Utterance) Length() (time.Duration, bool) {
	if u.Duration > 0 {
		return u.Duration, true
	}
	if bps := u.Encoding.BytesPerSecond(); bps > 0 {
		return time.Duration(len(u.Data)) * time.Second / time.Duration(bps), true
	}
	return 0, false
}

// Filename is the name used when uploading the utterance as a form file.
func (u Utterance) Filename() string {
	switch u.ContentType {
	case "audio/wav", "audio/x-wav":
		return "utterance.wav"
	case "audio/ogg":
		return "utterance.ogg"
	case "audio/mpeg":
		return "utterance.mp3"
	case "":
		if !u.Encoding.IsZero() {
			return "utterance.wav"
		}
	}
	return "utterance.webm"
}
