// Package quality computes the [0,1] data-trust score attached to every
// canonical reading. The heuristics are deterministic and side-effect free.
package quality

import "math"

// Defaults applied when a device omits radio/battery metadata. The LoRaWAN
// defaults land on the scale floor so missing metadata scores zero.
const (
	defaultRSSI           = -120.0
	defaultSNR            = -20.0
	defaultSignalStrength = 0.0
	defaultBatteryLevel   = 100.0
)

// LoRaWAN scores a reading from its radio stats. RSSI maps [-120,-60] and
// SNR maps [-20,10] onto [0,1]; the score is their mean.
func LoRaWAN(rssi, snr *float64) float64 {
	r := defaultRSSI
	if rssi != nil {
		r = *rssi
	}
	s := defaultSNR
	if snr != nil {
		s = *snr
	}
	rssiScore := clamp((r + 120) / 60)
	snrScore := clamp((s + 20) / 30)
	return round4((rssiScore + snrScore) / 2)
}

// NBIoT scores a reading from modem signal strength and battery level,
// weighted 60/40.
func NBIoT(signalStrength, batteryLevel *float64) float64 {
	signal := defaultSignalStrength
	if signalStrength != nil {
		signal = *signalStrength
	}
	battery := defaultBatteryLevel
	if batteryLevel != nil {
		battery = *batteryLevel
	}
	signalScore := clamp(signal / 100)
	batteryScore := clamp(battery / 100)
	return round4(signalScore*0.6 + batteryScore*0.4)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
