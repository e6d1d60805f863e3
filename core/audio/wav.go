package audio

import (
	"bytes"
	"encoding/binary"
)

// wav format tags
const (
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMuLaw = 7
)

// File returns the utterance as an uploadable file. Raw PCM is wrapped in a
// WAV container; containerized audio is returned unchanged.
func (u Utterance) File() (data []byte, contentType string) {
	if u.ContentType != "" || u.Encoding.IsZero() {
		contentType = u.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return u.Data, contentType
	}
	return encodeWAV(u.Data, u.Encoding), "audio/wav"
}

func encodeWAV(pcm []byte, encoding EncodingInfo) []byte {
	formatTag := uint16(wavFormatPCM)
	switch encoding.Format {
	case EncodingALaw:
		formatTag = wavFormatALaw
	case EncodingMulaw:
		formatTag = wavFormatMuLaw
	}
	sampleSize := encoding.Format.ByteSize()
	channels := encoding.channels()

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, formatTag)
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(encoding.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(encoding.BytesPerSecond()))
	_ = binary.Write(buf, binary.LittleEndian, uint16(sampleSize*channels))
	_ = binary.Write(buf, binary.LittleEndian, uint16(sampleSize*8))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
