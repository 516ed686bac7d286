package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetdispatch/internal/config"
	"fleetdispatch/internal/mq"
)

var deliveriesSeen = promauto.NewCounter(prometheus.CounterOpts{
	Name: "notifier_deliveries_seen_total",
	Help: "The total number of delivery events observed on the broker",
})

type EventRecord struct {
	ReceivedAt time.Time       `json:"received_at"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
}

type RingBuffer struct {
	mu  sync.Mutex
	max int
	arr []EventRecord
}

func NewRingBuffer(max int) *RingBuffer {
	if max <= 0 {
		max = 50
	}
	return &RingBuffer{max: max, arr: make([]EventRecord, 0, max)}
}

func (rb *RingBuffer) Add(e EventRecord) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.arr) < rb.max {
		rb.arr = append(rb.arr, e)
		return
	}
	copy(rb.arr, rb.arr[1:])
	rb.arr[len(rb.arr)-1] = e
}

func (rb *RingBuffer) Snapshot() []EventRecord {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]EventRecord, len(rb.arr))
	copy(out, rb.arr)
	return out
}

func main() {
	logger := log.New(os.Stdout, "[notifier] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadNotifier()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	rb := NewRingBuffer(cfg.EventBufferSize)

	client, err := mq.Connect(mq.Config{
		BrokerURL: cfg.MQTTBroker,
		ClientID:  cfg.MQTTClientID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("mqtt connect: %v", err)
	}
	defer client.Disconnect(250)

	subscribe := func(topic string) {
		token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			rb.Add(EventRecord{
				ReceivedAt: time.Now().UTC(),
				Topic:      msg.Topic(),
				Payload:    json.RawMessage(append([]byte(nil), msg.Payload()...)),
			})
			deliveriesSeen.Inc()
			logger.Printf("delivery topic=%s payload=%s", msg.Topic(), string(msg.Payload()))
		})
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Printf("subscribe error topic=%s: %v", topic, err)
		} else {
			logger.Printf("subscribed topic=%s", topic)
		}
	}

	subscribe(mq.TopicMessagesWildcard)
	subscribe(mq.TopicPhotosWildcard)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"notifier"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/events", func(w http.ResponseWriter, _ *http.Request) {
		events := rb.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count":  len(events),
			"events": events,
		})
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (mqtt=%s)", cfg.Addr, cfg.MQTTBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Printf("stopped")
}
