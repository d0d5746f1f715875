package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	IngestSecret      string
	IngestSkewSeconds int
	MQTTBrokerURL     string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTQoS           int
	Tuning            tuningConfig
}

// tuningConfig is the operator-facing tuning block. Environment variables set
// the defaults; a YAML file named by CITYSENSE_CONFIG overrides them.
type tuningConfig struct {
	ReplayCapacity       int  `yaml:"replay_capacity"`
	SubscriberBuffer     int  `yaml:"subscriber_buffer"`
	IdleEvictionMinutes  int  `yaml:"idle_eviction_minutes"`
	IdleSweepMinutes     int  `yaml:"idle_sweep_minutes"`
	CacheSweepSeconds    int  `yaml:"cache_sweep_seconds"`
	RequireLoRaWANAPIKey bool `yaml:"require_lorawan_api_key"`
	RequireNBIoTAPIKey   bool `yaml:"require_nbiot_api_key"`
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:      getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		MQTTBrokerURL:     getenvDefault("MQTT_BROKER_URL", ""),
		MQTTClientID:      getenvDefault("MQTT_CLIENT_ID", "citysense-ingest"),
		MQTTUsername:      getenvDefault("MQTT_USERNAME", ""),
		MQTTPassword:      getenvDefault("MQTT_PASSWORD", ""),
		MQTTQoS:           getenvIntDefault("MQTT_QOS", 1),
		Tuning: tuningConfig{
			ReplayCapacity:       getenvIntDefault("REPLAY_BUFFER_SIZE", 200),
			SubscriberBuffer:     getenvIntDefault("SUBSCRIBER_BUFFER_SIZE", 16),
			IdleEvictionMinutes:  getenvIntDefault("IDLE_EVICTION_MINUTES", 30),
			IdleSweepMinutes:     getenvIntDefault("IDLE_SWEEP_MINUTES", 5),
			CacheSweepSeconds:    getenvIntDefault("CACHE_SWEEP_SECONDS", 60),
			RequireLoRaWANAPIKey: getenvBoolDefault("REQUIRE_LORAWAN_API_KEY", false),
			RequireNBIoTAPIKey:   getenvBoolDefault("REQUIRE_NBIOT_API_KEY", false),
		},
	}

	if path := os.Getenv("CITYSENSE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("config file error: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg.Tuning); err != nil {
			log.Fatalf("config file parse error: %v", err)
		}
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (t tuningConfig) idleEviction() (ttl, sweep time.Duration) {
	if t.IdleEvictionMinutes <= 0 {
		return 0, 0
	}
	sweepMinutes := t.IdleSweepMinutes
	if sweepMinutes <= 0 {
		sweepMinutes = 5
	}
	return time.Duration(t.IdleEvictionMinutes) * time.Minute, time.Duration(sweepMinutes) * time.Minute
}

func (t tuningConfig) cacheSweep() time.Duration {
	if t.CacheSweepSeconds <= 0 {
		return 0
	}
	return time.Duration(t.CacheSweepSeconds) * time.Second
}
