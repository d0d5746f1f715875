package codec

import "encoding/binary"

// decodeRaw reads a single big-endian int32 scaled by 100. Short payloads
// yield an empty map; the caller reports the missing reading.
func decodeRaw(raw []byte) map[string]float64 {
	channels := make(map[string]float64)
	if len(raw) < 4 {
		return channels
	}
	value := int32(binary.BigEndian.Uint32(raw[:4]))
	channels["value"] = float64(value) / 100
	return channels
}
