package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"fleetdispatch/internal/config"
	"fleetdispatch/internal/dispatch"
	"fleetdispatch/internal/export"
	"fleetdispatch/internal/httpapi"
	"fleetdispatch/internal/mq"
	"fleetdispatch/internal/notify"
	"fleetdispatch/internal/roles"
	"fleetdispatch/internal/sse"
	"fleetdispatch/internal/stats"
	"fleetdispatch/internal/ticket"
)

func main() {
	logger := log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Fatalf("mkdir data dir: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := export.InitSchema(db); err != nil {
		logger.Fatalf("init schema: %v", err)
	}

	sheet := export.NewSheet(db)
	audit := export.NewAudit(logger, db)

	registry := roles.NewRegistry(cfg.BootstrapAdmins)
	store := ticket.NewStore()
	aggregator := stats.NewAggregator()

	mqttClient, err := mq.Connect(mq.Config{
		BrokerURL: cfg.MQTTBroker,
		ClientID:  cfg.MQTTClientID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("mqtt connect: %v", err)
	}
	defer mqttClient.Disconnect(250)

	sender := mq.NewSender(mqttClient, cfg.SendTimeout)
	fanout := notify.NewFanout(logger, sender, registry)

	engine := dispatch.New(dispatch.Config{
		Logger:        logger,
		Store:         store,
		Roles:         registry,
		Fanout:        fanout,
		Sender:        sender,
		Stats:         aggregator,
		Sheet:         sheet,
		Audit:         audit,
		ReminderDelay: cfg.ReminderDelay,
	})
	defer engine.Close()

	// Bridge outbound user messages into the SSE monitor stream.
	hub := sse.NewHub(logger)
	subscribeAndBridge(logger, mqttClient, hub)

	api := httpapi.New(logger, engine, store, registry, aggregator, hub.Handler(), cfg.AdminKey)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(20 * time.Second))
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"gateway"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	api.Register(r)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (db=%s, mqtt=%s)", cfg.Addr, cfg.DBPath, cfg.MQTTBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func subscribeAndBridge(logger *log.Logger, c mqtt.Client, hub *sse.Hub) {
	for _, topic := range []string{mq.TopicMessagesWildcard, mq.TopicPhotosWildcard} {
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			hub.Broadcast(msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Printf("mqtt subscribe error topic=%s: %v", topic, err)
		} else {
			logger.Printf("mqtt subscribed topic=%s", topic)
		}
	}
}
