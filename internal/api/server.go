/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/reeflab/reefcore/internal/clock"
	"github.com/reeflab/reefcore/internal/config"
	"github.com/reeflab/reefcore/internal/scheduler"
	"github.com/reeflab/reefcore/internal/store"
)

// Version is the server version (set at build time)
var Version = "dev"

// logger is the zerolog logger for the API server
var logger *zerolog.Logger

// SetLogger sets the zerolog logger for the API server
func SetLogger(l *zerolog.Logger) {
	logger = l
}

// Server is the REST API server
type Server struct {
	store     store.Store
	config    *config.Config
	executor  scheduler.Executor
	clock     clock.Clock
	startTime time.Time
	port      int
	server    *http.Server
}

// ServerOptions contains options for creating the server
type ServerOptions struct {
	Store    store.Store
	Config   *config.Config
	Executor scheduler.Executor
	Clock    clock.Clock
	Port     int
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	return &Server{
		store:     opts.Store,
		config:    opts.Config,
		executor:  opts.Executor,
		clock:     opts.Clock,
		startTime: opts.Clock.Now(),
		port:      opts.Port,
	}
}

// Start starts the API server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info().Int("port", s.port).Msg("starting API server")
		}
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if logger != nil {
		logger.Info().Msg("shutting down API server")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// zerologMiddleware is a chi middleware that logs requests using zerolog
func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// setupRoutes configures the router
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.API.RequestTimeout))
	r.Use(zerologMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.AllowedHosts,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handlers
	h := NewHandlers(s.store, s.config, s.executor, s.clock, s.startTime)

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health stays open for probes
		r.Get("/health", h.GetHealth)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(s.config.Auth.ServiceToken))

			r.Get("/stats", h.GetStats)

			// Schedules
			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", h.ListSchedules)
				r.Post("/", h.CreateSchedule)
				r.Get("/stats", h.GetScheduleStats)
				r.Get("/health", h.GetScheduleHealth)

				// Device actions
				r.Route("/device-actions", func(r chi.Router) {
					r.Get("/", h.ListActions)
					r.Post("/", h.CreateAction)
					r.Post("/cleanup", h.CleanupActions)
					r.Get("/{id}", h.GetAction)
					r.Delete("/{id}", h.DeleteAction)
					r.Post("/{id}/execute", h.ExecuteAction)
				})

				r.Get("/{id}", h.GetSchedule)
				r.Put("/{id}", h.UpdateSchedule)
				r.Patch("/{id}", h.UpdateSchedule)
				r.Delete("/{id}", h.DeleteSchedule)
				r.Post("/{id}/enable", h.EnableSchedule)
				r.Post("/{id}/disable", h.DisableSchedule)
			})

			// Devices
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", h.ListDevices)
				r.Post("/", h.CreateDevice)
				r.Get("/{id}", h.GetDevice)
				r.Put("/{id}", h.UpdateDevice)
				r.Patch("/{id}", h.UpdateDevice)
				r.Delete("/{id}", h.DeleteDevice)
				r.Get("/{id}/history", h.GetDeviceHistory)
				r.Get("/{id}/readings/latest", h.GetLatestReading)
			})

			// Alerts
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.ListAlerts)
				r.Post("/", h.CreateAlert)

				r.Route("/events", func(r chi.Router) {
					r.Get("/", h.ListAlertEvents)
					r.Get("/{id}", h.GetAlertEvent)
				})

				r.Get("/{id}", h.GetAlert)
				r.Put("/{id}", h.UpdateAlert)
				r.Patch("/{id}", h.UpdateAlert)
				r.Delete("/{id}", h.DeleteAlert)
				r.Post("/{id}/enable", h.EnableAlert)
				r.Post("/{id}/disable", h.DisableAlert)
			})
		})
	})

	return r
}
