// Package gatewaymqtt subscribes to the broker topics field gateways publish
// on and feeds the same ingestion adapter as the HTTP endpoints. A rejected
// message is logged and dropped; the subscription stays up.
package gatewaymqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"citysense-cloud/internal/telemetry/application"
	"citysense-cloud/internal/telemetry/codec"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

const (
	defaultLoRaWANTopic = "ingest/lorawan/uplink"
	defaultNBIoTTopic   = "ingest/nbiot/message"

	handleTimeout = 10 * time.Second
)

// Ingestor is the slice of the ingestion adapter the gateway needs.
type Ingestor interface {
	IngestLoRaWAN(ctx context.Context, uplink application.LoRaWANUplink) (application.Result, error)
	IngestNBIoT(ctx context.Context, msg application.NBIoTMessage) (application.Result, error)
}

// Gateway consumes uplinks from an MQTT broker.
type Gateway struct {
	client       mqtt.Client
	service      Ingestor
	logger       *log.Logger
	lorawanTopic string
	nbiotTopic   string
	qos          byte
}

// Option configures the gateway.
type Option func(*Gateway)

// WithTopics overrides the subscription topics.
func WithTopics(lorawan, nbiot string) Option {
	return func(g *Gateway) {
		if lorawan != "" {
			g.lorawanTopic = lorawan
		}
		if nbiot != "" {
			g.nbiotTopic = nbiot
		}
	}
}

// WithQoS overrides the subscription QoS level.
func WithQoS(qos byte) Option {
	return func(g *Gateway) { g.qos = qos }
}

// NewGateway constructs an MQTT gateway over a connected client.
func NewGateway(client mqtt.Client, service Ingestor, logger *log.Logger, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("mqtt gateway: nil client")
	}
	if service == nil {
		return nil, errors.New("mqtt gateway: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	g := &Gateway{
		client:       client,
		service:      service,
		logger:       logger,
		lorawanTopic: defaultLoRaWANTopic,
		nbiotTopic:   defaultNBIoTTopic,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Start subscribes to both protocol topics.
func (g *Gateway) Start() error {
	if token := g.client.Subscribe(g.lorawanTopic, g.qos, g.handleLoRaWAN); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := g.client.Subscribe(g.nbiotTopic, g.qos, g.handleNBIoT); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	g.logger.Printf("mqtt gateway: subscribed topics=%s,%s", g.lorawanTopic, g.nbiotTopic)
	return nil
}

// Stop unsubscribes from the protocol topics.
func (g *Gateway) Stop() {
	if g == nil || g.client == nil {
		return
	}
	if token := g.client.Unsubscribe(g.lorawanTopic, g.nbiotTopic); token.Wait() && token.Error() != nil {
		g.logger.Printf("mqtt gateway: unsubscribe error: %v", token.Error())
	}
}

type lorawanUplinkMessage struct {
	DeviceEUI              string   `json:"dev_eui"`
	Payload                string   `json:"payload"`
	Codec                  string   `json:"codec"`
	RSSI                   *float64 `json:"rssi"`
	SNR                    *float64 `json:"snr"`
	Frequency              *float64 `json:"frequency"`
	Timestamp              *int64   `json:"timestamp"`
	CertificateFingerprint string   `json:"certificate_fingerprint"`
}

func (g *Gateway) handleLoRaWAN(_ mqtt.Client, msg mqtt.Message) {
	var req lorawanUplinkMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		g.logger.Printf("mqtt gateway: lorawan decode error: topic=%s err=%v", msg.Topic(), err)
		return
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
	if err != nil {
		g.logger.Printf("mqtt gateway: lorawan payload not hex: dev_eui=%s", req.DeviceEUI)
		return
	}
	uplinkCodec := codec.Codec(req.Codec)
	if req.Codec == "" {
		uplinkCodec = codec.CodecCayenne
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	_, err = g.service.IngestLoRaWAN(ctx, application.LoRaWANUplink{
		DeviceEUI:              req.DeviceEUI,
		Payload:                payload,
		Codec:                  uplinkCodec,
		RSSI:                   req.RSSI,
		SNR:                    req.SNR,
		Frequency:              req.Frequency,
		Timestamp:              epochToTime(req.Timestamp),
		CertificateFingerprint: req.CertificateFingerprint,
	})
	g.logOutcome("lorawan", req.DeviceEUI, err)
}

type nbiotRecordMessage struct {
	IMEI           string   `json:"imei"`
	Value          *float64 `json:"value"`
	SignalStrength *float64 `json:"signal_strength"`
	BatteryLevel   *float64 `json:"battery_level"`
	Timestamp      *int64   `json:"timestamp"`
	APIKey         string   `json:"api_key"`
}

func (g *Gateway) handleNBIoT(_ mqtt.Client, msg mqtt.Message) {
	var req nbiotRecordMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		g.logger.Printf("mqtt gateway: nbiot decode error: topic=%s err=%v", msg.Topic(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	_, err := g.service.IngestNBIoT(ctx, application.NBIoTMessage{
		IMEI:           req.IMEI,
		Value:          req.Value,
		SignalStrength: req.SignalStrength,
		BatteryLevel:   req.BatteryLevel,
		Timestamp:      epochToTime(req.Timestamp),
		APIKey:         req.APIKey,
	})
	g.logOutcome("nbiot", req.IMEI, err)
}

func (g *Gateway) logOutcome(protocol, device string, err error) {
	switch {
	case err == nil:
	case telemetry.IsClientError(err):
		g.logger.Printf("mqtt gateway: %s message rejected: device=%s reason=%v", protocol, device, err)
	default:
		g.logger.Printf("mqtt gateway: %s ingestion error: device=%s err=%v", protocol, device, err)
	}
}

func epochToTime(value *int64) *time.Time {
	if value == nil || *value <= 0 {
		return nil
	}
	var ts time.Time
	if *value > 1_000_000_000_000 {
		ts = time.UnixMilli(*value).UTC()
	} else {
		ts = time.Unix(*value, 0).UTC()
	}
	return &ts
}
