// Package codec turns raw device payloads into named numeric channels.
// Decoding is total for well-known codecs: malformed tags are skipped,
// truncated records stop the walk, and only an unknown codec is an error.
package codec

import (
	telemetry "citysense-cloud/internal/telemetry/domain"
)

// Codec selects the binary payload layout.
type Codec string

const (
	// CodecCayenne is the channel/type tagged layout used by LoRaWAN field sensors.
	CodecCayenne Codec = "cayenne"
	// CodecRaw is a single big-endian int32 reading scaled by 100.
	CodecRaw Codec = "raw"
)

// Decode parses raw bytes according to the codec. An empty map is a valid
// outcome; callers decide whether the absence of channels is fatal.
func Decode(raw []byte, codec Codec) (map[string]float64, error) {
	switch codec {
	case CodecCayenne:
		return decodeCayenne(raw), nil
	case CodecRaw:
		return decodeRaw(raw), nil
	default:
		return nil, telemetry.ErrUnsupportedCodec
	}
}
