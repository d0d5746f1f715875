package gatewaymqtt

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysense-cloud/internal/telemetry/application"
	"citysense-cloud/internal/telemetry/codec"
)

type stubToken struct{}

func (stubToken) Wait() bool                       { return true }
func (stubToken) WaitTimeout(_ time.Duration) bool { return true }
func (stubToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
func (stubToken) Error() error { return nil }

type stubClient struct {
	mqtt.Client
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func (c *stubClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) mqtt.Token {
	if c.handlers == nil {
		c.handlers = make(map[string]mqtt.MessageHandler)
	}
	c.handlers[topic] = handler
	return stubToken{}
}

func (c *stubClient) Unsubscribe(topics ...string) mqtt.Token {
	c.unsubscribed = append(c.unsubscribed, topics...)
	return stubToken{}
}

type stubMessage struct {
	topic   string
	payload []byte
}

func (stubMessage) Duplicate() bool   { return false }
func (stubMessage) Qos() byte         { return 1 }
func (stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string   { return m.topic }
func (stubMessage) MessageID() uint16 { return 1 }
func (m stubMessage) Payload() []byte { return m.payload }
func (stubMessage) Ack()              {}

type stubIngestor struct {
	lorawan []application.LoRaWANUplink
	nbiot   []application.NBIoTMessage
	err     error
}

func (s *stubIngestor) IngestLoRaWAN(_ context.Context, uplink application.LoRaWANUplink) (application.Result, error) {
	s.lorawan = append(s.lorawan, uplink)
	return application.Result{}, s.err
}

func (s *stubIngestor) IngestNBIoT(_ context.Context, msg application.NBIoTMessage) (application.Result, error) {
	s.nbiot = append(s.nbiot, msg)
	return application.Result{}, s.err
}

func TestGatewaySubscribesBothTopics(t *testing.T) {
	client := &stubClient{}
	gateway, err := NewGateway(client, &stubIngestor{}, nil)
	require.NoError(t, err)
	require.NoError(t, gateway.Start())

	assert.Contains(t, client.handlers, "ingest/lorawan/uplink")
	assert.Contains(t, client.handlers, "ingest/nbiot/message")

	gateway.Stop()
	assert.ElementsMatch(t, []string{"ingest/lorawan/uplink", "ingest/nbiot/message"}, client.unsubscribed)
}

func TestGatewayDeliversLoRaWANUplink(t *testing.T) {
	client := &stubClient{}
	ingestor := &stubIngestor{}
	gateway, err := NewGateway(client, ingestor, nil)
	require.NoError(t, err)
	require.NoError(t, gateway.Start())

	body := `{"dev_eui":"0004A30B001C0530","payload":"0x01020110","rssi":-90,"snr":5,"timestamp":1756600000}`
	client.handlers["ingest/lorawan/uplink"](nil, stubMessage{topic: "ingest/lorawan/uplink", payload: []byte(body)})

	require.Len(t, ingestor.lorawan, 1)
	uplink := ingestor.lorawan[0]
	assert.Equal(t, "0004A30B001C0530", uplink.DeviceEUI)
	assert.Equal(t, []byte{0x01, 0x02, 0x01, 0x10}, uplink.Payload)
	assert.Equal(t, codec.CodecCayenne, uplink.Codec)
	require.NotNil(t, uplink.RSSI)
	assert.Equal(t, -90.0, *uplink.RSSI)
	require.NotNil(t, uplink.Timestamp)
	assert.Equal(t, int64(1756600000), uplink.Timestamp.Unix())
}

func TestGatewayDeliversNBIoTMessage(t *testing.T) {
	client := &stubClient{}
	ingestor := &stubIngestor{}
	gateway, err := NewGateway(client, ingestor, nil)
	require.NoError(t, err)
	require.NoError(t, gateway.Start())

	body := `{"imei":"867530901234567","value":21.5,"signal_strength":80,"battery_level":50,"api_key":"key-1"}`
	client.handlers["ingest/nbiot/message"](nil, stubMessage{topic: "ingest/nbiot/message", payload: []byte(body)})

	require.Len(t, ingestor.nbiot, 1)
	msg := ingestor.nbiot[0]
	assert.Equal(t, "867530901234567", msg.IMEI)
	require.NotNil(t, msg.Value)
	assert.Equal(t, 21.5, *msg.Value)
	assert.Equal(t, "key-1", msg.APIKey)
	assert.Nil(t, msg.Timestamp)
}

func TestGatewayDropsMalformedMessages(t *testing.T) {
	client := &stubClient{}
	ingestor := &stubIngestor{}
	gateway, err := NewGateway(client, ingestor, nil)
	require.NoError(t, err)
	require.NoError(t, gateway.Start())

	client.handlers["ingest/lorawan/uplink"](nil, stubMessage{payload: []byte(`{`)})
	client.handlers["ingest/lorawan/uplink"](nil, stubMessage{payload: []byte(`{"dev_eui":"a","payload":"zz"}`)})
	client.handlers["ingest/nbiot/message"](nil, stubMessage{payload: []byte(`not json`)})

	assert.Empty(t, ingestor.lorawan)
	assert.Empty(t, ingestor.nbiot)
}
