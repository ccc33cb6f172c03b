package audio

import (
	"encoding/binary"
	"time"
)

// WAVDuration reads the playback duration from a RIFF/WAVE header. It reports
// false when data is not a WAV file it understands.
func WAVDuration(data []byte) (time.Duration, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8
		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, false
			}
			// ffmpeg leaves the size at 0 or 0xFFFFFFFF when streaming.
			n := int64(size)
			if size == 0 || size == 0xFFFFFFFF || body+int(size) > len(data) {
				n = int64(len(data) - body)
			}
			return time.Duration(n) * time.Second / time.Duration(byteRate), true
		}
		off = body + int(size) + int(size&1)
	}
	return 0, false
}
