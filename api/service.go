package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/events"
	"CimplrBankImport/internal/logger"
	"CimplrBankImport/internal/serviceiface"
)

// BankImportService serves the bank import HTTP API.
type BankImportService struct {
	config map[string]interface{}
	svc    *bankimport.Service
	health HealthReporter
	hub    *events.Hub
	server *http.Server
	addr   string
}

// NewBankImportService wires the HTTP surface. hub may be nil.
func NewBankImportService(cfg map[string]interface{}, svc *bankimport.Service, health HealthReporter, hub *events.Hub) serviceiface.Service {
	return &BankImportService{config: cfg, svc: svc, health: health, hub: hub}
}

func (s *BankImportService) Name() string {
	return "bankimport"
}

// Addr is the address the server is listening on once started.
func (s *BankImportService) Addr() string {
	return s.addr
}

func (s *BankImportService) Start() error {
	if s.svc == nil {
		return errors.New("bankimport service is not wired to a pipeline")
	}
	log := logger.Get()
	var stream EventStream
	if s.hub != nil {
		stream = s.hub
	}
	handlers := NewHandlers(s.svc, s.health, stream, config.Int(s.config, "max_upload_mb", config.DefaultMaxUploadMB))
	port := config.Int(s.config, "port", config.DefaultPort)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bankimport listen: %w", err)
	}
	s.addr = ln.Addr().String()
	s.server = &http.Server{
		Handler:           NewRouter(handlers, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.Duration(s.config, "read_timeout", 2*time.Minute),
		WriteTimeout:      config.Duration(s.config, "write_timeout", 2*time.Minute),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("bankimport server failed")
		}
	}()
	log.Info().Str("addr", s.addr).Msg("bankimport service started")
	return nil
}

func (s *BankImportService) Stop() error {
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
