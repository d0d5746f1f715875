package codec

import (
	"encoding/binary"
	"strconv"
)

// Cayenne-style type tags observed on deployed sensors.
const (
	tagAnalogInput = 0x02 // 2-byte signed analog, scaled by 100
	tagTemperature = 0x67 // 2-byte signed temperature, scaled by 10
)

// decodeCayenne walks channel/type tagged records. Unknown tags advance a
// single byte so one corrupt tag does not discard the rest of the message.
func decodeCayenne(raw []byte) map[string]float64 {
	channels := make(map[string]float64)
	offset := 0
	for offset+2 <= len(raw) {
		channel := raw[offset]
		tag := raw[offset+1]
		switch tag {
		case tagAnalogInput:
			if offset+4 > len(raw) {
				// Truncated record, nothing more to parse.
				return channels
			}
			value := int16(binary.BigEndian.Uint16(raw[offset+2 : offset+4]))
			channels["channel_"+strconv.Itoa(int(channel))] = float64(value) / 100
			offset += 4
		case tagTemperature:
			if offset+4 > len(raw) {
				return channels
			}
			value := int16(binary.BigEndian.Uint16(raw[offset+2 : offset+4]))
			channels["temperature_"+strconv.Itoa(int(channel))] = float64(value) / 10
			offset += 4
		default:
			offset++
		}
	}
	return channels
}
