package telemetry

// Metadata is the protocol-specific radio/battery variant kept alongside
// a reading for diagnostics. The adapter only relies on the narrow view
// (value, quality, auth hint); the variant is retained whole.
type Metadata interface {
	Protocol() Protocol
}

// LoRaWANMetadata carries LoRaWAN radio stats. Nil fields were not
// reported by the network server.
type LoRaWANMetadata struct {
	RSSI      *float64 `json:"rssi,omitempty"`
	SNR       *float64 `json:"snr,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
}

// Protocol implements Metadata.
func (LoRaWANMetadata) Protocol() Protocol { return ProtocolLoRaWAN }

// NBIoTMetadata carries NB-IoT modem stats. Nil fields were not reported.
type NBIoTMetadata struct {
	SignalStrength *float64 `json:"signal_strength,omitempty"`
	BatteryLevel   *float64 `json:"battery_level,omitempty"`
}

// Protocol implements Metadata.
func (NBIoTMetadata) Protocol() Protocol { return ProtocolNBIoT }
