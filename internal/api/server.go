// Package api exposes the HTTP surface: the mail provider ingress hook and
// the JSON API the applicant frontend talks to. Authentication happens
// upstream; the trusted proxy passes the applicant identity in a header.
package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/obligees"
)

// Server represents the API server
type Server struct {
	echo       *echo.Echo
	addr       string
	service    *inforequests.Service
	dispatcher *inforequests.Dispatcher
	obligees   *obligees.Storage
}

// NewServer creates a new API server
func NewServer(addr string, service *inforequests.Service,
	dispatcher *inforequests.Dispatcher, ob *obligees.Storage) *Server {

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:       e,
		addr:       addr,
		service:    service,
		dispatcher: dispatcher,
		obligees:   ob,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	// The mail provider posts every inbound message here.
	s.echo.POST("/ingress/mail", s.ingressMail)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/obligees", s.searchObligees)
	v1.POST("/inforequests", s.createInforequest)
	v1.GET("/inforequests/:id", s.getInforequest)
	v1.GET("/inforequests/:id/undecided", s.listUndecided)
	v1.POST("/inforequests/:id/actions", s.addObligeeAction)
	v1.GET("/inforequests/:id/draft", s.getDraft)
	v1.PUT("/inforequests/:id/draft", s.saveDraft)
	v1.DELETE("/inforequests/:id/draft", s.discardDraft)
	v1.POST("/inforequests/:id/classify", s.classify)
	v1.POST("/inforequests/:id/branches/:branch/clarification-response", s.addClarificationResponse)
	v1.POST("/inforequests/:id/branches/:branch/appeal", s.addAppeal)
	v1.POST("/inforequests/:id/branches/:branch/extension", s.grantExtension)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
