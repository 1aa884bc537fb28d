package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/techagentng/civicpulse/config"
	"github.com/techagentng/civicpulse/services"
)

// Server holds the dependencies of the HTTP transport.
type Server struct {
	Config             *config.Config
	CivicReportService services.CivicReportService
	PointsService      services.PointsService
	Hub                *EventHub
}

func (s *Server) Start() {
	r := s.setupRouter()

	port := fmt.Sprintf(":%d", s.Config.Port)
	if s.Config.Port == 0 {
		port = ":8080"
	}
	srv := &http.Server{
		Addr:              port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server started on %s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.Hub != nil {
		s.Hub.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
