package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WAV container parameters for finalized recordings.
const (
	wavSampleRate = 8000
	wavChannels   = 1
	wavBitDepth   = 16
)

// WriteWAV writes samples as a PCM16 mono 8kHz WAV file to w.
func WriteWAV(w io.Writer, samples []int16) error {
	dataLen := len(samples) * 2
	byteRate := wavSampleRate * wavChannels * wavBitDepth / 8
	blockAlign := wavChannels * wavBitDepth / 8

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], wavChannels)
	binary.LittleEndian.PutUint32(header[24:28], wavSampleRate)
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], wavBitDepth)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing WAV header: %w", err)
	}

	buf := make([]byte, dataLen)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing WAV data: %w", err)
	}
	return nil
}
