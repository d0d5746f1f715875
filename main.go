package main

import (
	"bufio"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"citysense-cloud/internal/audit"
	audithttp "citysense-cloud/internal/audit/interfaces/http"
	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/cache"
	dashapp "citysense-cloud/internal/dashboard/application"
	dashpostgres "citysense-cloud/internal/dashboard/infrastructure/postgres"
	dashhttp "citysense-cloud/internal/dashboard/interfaces/http"
	"citysense-cloud/internal/distributor"
	streamhttp "citysense-cloud/internal/distributor/interfaces/http"
	"citysense-cloud/internal/observability/metrics"
	telemetryapp "citysense-cloud/internal/telemetry/application"
	telemetrypostgres "citysense-cloud/internal/telemetry/infrastructure/postgres"
	gatewayhttp "citysense-cloud/internal/telemetry/interfaces/http"
	gatewaymqtt "citysense-cloud/internal/telemetry/interfaces/mqtt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(logger)
	auditRepo := audit.NewRepository(db)

	idleTTL, idleSweep := cfg.Tuning.idleEviction()
	dist := distributor.New(logger,
		distributor.WithReplayCapacity(cfg.Tuning.ReplayCapacity),
		distributor.WithSubscriberBuffer(cfg.Tuning.SubscriberBuffer),
		distributor.WithIdleEviction(idleTTL, idleSweep),
	)
	defer dist.Close()

	readingStore := telemetrypostgres.NewReadingStore(db)
	ingestService, err := telemetryapp.NewService(readingStore, logger,
		telemetryapp.WithEventPublisher(distributorPublisher{dist: dist}),
		telemetryapp.WithAuthPolicy(telemetryapp.AuthPolicy{
			EnforceLoRaWANAPIKey: cfg.Tuning.RequireLoRaWANAPIKey,
			EnforceNBIoTAPIKey:   cfg.Tuning.RequireNBIoTAPIKey,
		}),
	)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	lorawanHandler, err := gatewayhttp.NewLoRaWANUplinkHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("lorawan handler error: %v", err)
	}
	nbiotHandler, err := gatewayhttp.NewNBIoTMessageHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("nbiot handler error: %v", err)
	}
	registryHandler, err := gatewayhttp.NewRegistryHandler(telemetrypostgres.NewSensorRegistry(db), auditRepo, logger)
	if err != nil {
		logger.Fatalf("registry handler error: %v", err)
	}

	if cfg.MQTTBrokerURL != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBrokerURL).
			SetClientID(cfg.MQTTClientID).
			SetUsername(cfg.MQTTUsername).
			SetPassword(cfg.MQTTPassword).
			SetAutoReconnect(true).
			SetConnectTimeout(10 * time.Second)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Fatalf("mqtt connect error: %v", token.Error())
		}
		gateway, err := gatewaymqtt.NewGateway(client, ingestService, logger, gatewaymqtt.WithQoS(byte(cfg.MQTTQoS)))
		if err != nil {
			logger.Fatalf("mqtt gateway error: %v", err)
		}
		if err := gateway.Start(); err != nil {
			logger.Fatalf("mqtt subscribe error: %v", err)
		}
		defer gateway.Stop()
	}

	store := cache.New(cache.WithSweepInterval(cfg.Tuning.cacheSweep()))
	defer store.Close()

	dashService, err := dashapp.NewService(dashpostgres.NewReader(db), store, logger)
	if err != nil {
		logger.Fatalf("dashboard service error: %v", err)
	}
	dashHandler := dashhttp.NewHandler(dashService, logger)
	reportHandler := dashhttp.NewReportHandler(dashService, auditRepo, logger)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ingest/lorawan/uplink", ingestAuth.Wrap(lorawanHandler))
	mux.Handle("/api/v1/ingest/nbiot/message", ingestAuth.Wrap(nbiotHandler))
	mux.Handle("/api/v1/sensors", registryHandler)
	mux.Handle("/api/v1/sensors/", registryHandler)
	mux.Handle("/api/v1/events/stream", streamhttp.NewStreamHandler(dist))
	mux.Handle("/api/v1/events/ws", streamhttp.NewWSHandler(dist, logger))
	mux.Handle("/api/v1/events/recent", streamhttp.NewRecentHandler(dist))
	mux.Handle("/api/v1/events/alert", streamhttp.NewAlertHandler(dist, auditRepo, logger))
	mux.Handle("/api/v1/dashboard/", dashHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/api/v1/audit", audithttp.NewTrailHandler(auditRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the middleware chain.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// ---- Adapters ----

// distributorPublisher feeds accepted readings into the real-time stream.
type distributorPublisher struct {
	dist *distributor.Distributor
}

func (p distributorPublisher) Publish(tenantID, eventType string, payload map[string]any) error {
	_, err := p.dist.Publish(tenantID, eventType, payload)
	return err
}
