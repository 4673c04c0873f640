package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	appconfig "github.com/lumitv/voice-gateway/internal/config"
	apphttp "github.com/lumitv/voice-gateway/internal/http"
	applogger "github.com/lumitv/voice-gateway/internal/logger"
	"github.com/lumitv/voice-gateway/internal/ws"
	"github.com/lumitv/voice-gateway/pkg/command"
	"github.com/lumitv/voice-gateway/pkg/transcribe"
)

// Server represents a server.
type Server struct {
	cfg    appconfig.Config
	logger *zap.Logger
	server *http.Server
}

// New executes the new function. An empty configPath falls back to the
// embedded defaults plus a conf.yaml discovered near the working directory.
func New(configPath string) (*Server, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("gateway logger configured",
		zap.String("level", cfg.Log.Level),
		zap.Bool("stdout", cfg.Log.Stdout),
		zap.Bool("file_enabled", cfg.Log.File.Enabled),
		zap.String("file_path", cfg.Log.File.Path),
		zap.String("file_name", cfg.Log.File.Name),
	)
	logger.Info("gateway config loaded",
		zap.String("config_path", configPath),
		zap.String("root_dir", cfg.RootDir),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	var transcriber transcribe.Transcriber
	if cfg.GeminiAPIKey != "" {
		t, err := transcribe.NewGeminiTranscriber(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("create transcriber: %w", err)
		}
		transcriber = t
	} else {
		logger.Warn("gemini api key not set; streaming transcription disabled")
	}

	apps, err := command.LoadAppTable(cfg.AppTablePath)
	if err != nil {
		logger.Warn("app table load failed; using built-in destinations",
			zap.String("path", cfg.AppTablePath),
			zap.Error(err),
		)
		apps = command.NewAppTable()
	}

	wsHandler := ws.NewHandler(logger, cfg, transcriber, apps)
	router := apphttp.NewRouter(wsHandler, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		server: httpServer,
	}, nil
}

// Run executes the run method.
func (s *Server) Run() error {
	if s == nil || s.server == nil {
		return nil
	}
	s.logger.Info("starting http server", zap.String("addr", s.cfg.HTTPAddr))
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr executes the addr method.
func (s *Server) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Shutdown executes the shutdown method.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Logger exposes the configured logger.
func (s *Server) Logger() *zap.Logger {
	if s == nil {
		return zap.NewNop()
	}
	return s.logger
}
