// Copyright 2025 Jazzam
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"jazzam/platform/shared/logger"
	"jazzam/platform/systemstore"
	"jazzam/platform/tenantdb"
)

// Prometheus metrics
var (
	promHTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jazzam_gateway_requests_total",
			Help: "Total number of requests processed by the gateway",
		},
		[]string{"status"},
	)
	promHTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jazzam_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(promHTTPRequestsTotal)
	prometheus.MustRegister(promHTTPRequestDuration)
}

// Config holds the gateway's environment-driven settings.
type Config struct {
	Port             string
	MongoURI         string
	TenantDBTemplate string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	RateLimit        int
	Pool             tenantdb.PoolConfig
}

// LoadConfigFromEnv resolves gateway configuration from the environment.
func LoadConfigFromEnv() Config {
	rateLimit := DefaultRequestsPerMinute
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimit = n
		}
	}

	return Config{
		Port:             getEnv("PORT", "8080"),
		MongoURI:         os.Getenv("MONGO_URI"),
		TenantDBTemplate: getEnv("TENANT_DB_TEMPLATE", "jazzam_{tenant}"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RateLimit:        rateLimit,
		Pool:             tenantdb.LoadPoolConfigFromEnv(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Server owns the HTTP surface and every backing resource: the tenant
// pool, the model registry, the system store and the rate limiter. It is
// constructed with NewServer and torn down with Shutdown; nothing lives
// in package globals, so tests can run isolated instances side by side.
type Server struct {
	cfg      Config
	router   *mux.Router
	http     *http.Server
	pool     *tenantdb.TenantPool
	registry *tenantdb.ModelRegistry
	store    *systemstore.Store
	limiter  *RateLimiter
	logger   *logger.Logger
}

// NewServer wires the gateway from configuration.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	namer, err := tenantdb.NewTemplateNamer(cfg.TenantDBTemplate)
	if err != nil {
		return nil, err
	}

	factory, err := tenantdb.NewMongoFactory(tenantdb.MongoFactoryOptions{
		URI:   cfg.MongoURI,
		Namer: namer,
	})
	if err != nil {
		return nil, err
	}

	pool, err := tenantdb.NewTenantPool(tenantdb.TenantPoolOptions{
		Factory: factory,
		Config:  cfg.Pool,
	})
	if err != nil {
		return nil, err
	}

	store, err := systemstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		pool.CloseAll(ctx)
		return nil, err
	}

	auth, err := NewAuthenticator([]byte(cfg.JWTSecret))
	if err != nil {
		pool.CloseAll(ctx)
		store.Close()
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		pool:     pool,
		registry: tenantdb.NewModelRegistry(namer, nil),
		store:    store,
		limiter:  NewRateLimiter(cfg.RedisURL, cfg.RateLimit),
		logger:   logger.New("gateway"),
	}
	s.buildRouter(auth)

	return s, nil
}

func (s *Server) buildRouter(auth *Authenticator) {
	s.router = mux.NewRouter()

	s.router.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	resolver := NewTenantResolver(auth, s.store, s.pool)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.instrument, resolver.Middleware, s.limiter.Middleware)

	NewLeadHandlers(s.registry).Register(api)
	api.HandleFunc("/pool/stats", s.poolStatsHandler).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.http = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      corsHandler.Handler(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// instrument records request counts and latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		promHTTPRequestsTotal.WithLabelValues(strconv.Itoa(rec.status)).Inc()
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				promHTTPRequestDuration.WithLabelValues(tmpl).Observe(float64(time.Since(start).Milliseconds()))
			}
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// healthHandler reports service and system store health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "jazzam-gateway",
		"timestamp": time.Now().UTC(),
	})
}

// poolStatsHandler exposes the tenant pool diagnostics.
func (s *Server) poolStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.logger.Info("", "", "Gateway starting", map[string]interface{}{
		"port": s.cfg.Port,
	})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then tears down the tenant pool,
// the rate limiter and the system store, in that order.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.pool.CloseAll(ctx)
	if cerr := s.limiter.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}

	s.logger.Info("", "", "Gateway stopped", nil)
	return err
}

// Run is the process entry point: load config, serve, and shut down
// gracefully on SIGINT/SIGTERM.
func Run() {
	ctx := context.Background()

	server, err := NewServer(ctx, LoadConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to initialize gateway: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
