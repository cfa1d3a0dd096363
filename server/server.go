package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Syferie/BiliBili-Transcribe/config"
	"github.com/Syferie/BiliBili-Transcribe/download"
	"github.com/Syferie/BiliBili-Transcribe/progress"
	"github.com/Syferie/BiliBili-Transcribe/transcribe"
)

// AudioFetcher acquires the audio track for a video identifier.
type AudioFetcher interface {
	Fetch(ctx context.Context, bvID string) (download.Result, error)
}

// TranscriptRunner drives one transcription job.
type TranscriptRunner interface {
	Run(ctx context.Context, jobKey, audioPath, backend string, opts transcribe.Options) ([]transcribe.Segment, error)
}

// Server exposes the transcription HTTP API.
type Server struct {
	config  *config.Holder
	store   *progress.Store
	fetcher AudioFetcher
	runner  TranscriptRunner

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

// New wires the API server. The config holder is consulted per request
// so reloaded settings apply without a restart.
func New(holder *config.Holder, store *progress.Store, fetcher AudioFetcher, runner TranscriptRunner) *Server {
	s := &Server{
		config:  holder,
		store:   store,
		fetcher: fetcher,
		runner:  runner,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limiters: make(map[string]*clientLimiter),
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	s.httpServer = &http.Server{
		Addr:    holder.Current().Addr,
		Handler: requestLogging(cors(s.router())),
	}

	return s
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/transcribe", s.rateLimited(s.handleTranscribe)).Methods("POST")
	router.HandleFunc("/api/progress", s.handleProgress).Methods("GET")
	router.HandleFunc("/api/progress/ws/{bvId}", s.handleProgressWS)
	router.HandleFunc("/api/export_srt", s.handleExportSRT).Methods("POST")
	router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	return router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop shuts the HTTP server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
