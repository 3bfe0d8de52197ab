// Package api serves the ingestion and question answering operations over
// HTTP. Callers identify themselves with the X-User-ID header; verifying
// that identity is left to the proxy in front of the server.
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/ad-itya07/Dionysus/internal/credits"
	"github.com/ad-itya07/Dionysus/internal/github"
	"github.com/ad-itya07/Dionysus/internal/ingest"
	"github.com/ad-itya07/Dionysus/internal/pubsub"
	"github.com/ad-itya07/Dionysus/internal/qa"
	"github.com/ad-itya07/Dionysus/internal/store"
)

// UserHeader carries the caller's user id.
const UserHeader = "X-User-ID"

// DefaultEventTimeout bounds a progress event stream.
const DefaultEventTimeout = 30 * time.Minute

// Deps are the services behind the API.
type Deps struct {
	Service   *ingest.Service
	Answerer  *qa.Answerer
	Admission *credits.Admission
	Broker    *pubsub.Broker[ingest.ProgressEvent]
	Logger    *slog.Logger

	AppName      string
	AllowOrigins []string
	EventTimeout time.Duration
	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	app    *fiber.App
	logger *slog.Logger

	// ctx outlives single requests so streams can finish writing after
	// their handler returns.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server with every route registered.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.AppName == "" {
		deps.AppName = "dionysus"
	}
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = DefaultEventTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:   deps,
		logger: deps.Logger.With("component", "api"),
		ctx:    ctx,
		cancel: cancel,
	}

	// Streams stay open longer than any write timeout would allow.
	s.app = fiber.New(fiber.Config{
		AppName:     deps.AppName,
		ReadTimeout: 30 * time.Second,
	})
	s.app.Use(recover.New())
	if deps.AccessLog {
		s.app.Use(fiberlogger.New())
	}
	if len(deps.AllowOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: deps.AllowOrigins,
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", UserHeader},
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		}))
	}

	s.app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "app": deps.AppName})
	})

	api := s.app.Group("/api/v1", requireUser)
	api.Post("/repos/check", s.checkRepository)
	api.Post("/projects", s.createProject)
	api.Get("/projects", s.listProjects)
	api.Get("/projects/:id/status", s.requireMember, s.status)
	api.Get("/projects/:id/events", s.requireMember, s.events)
	api.Post("/projects/:id/restart", s.restart)
	api.Delete("/projects/:id", s.archive)
	api.Get("/projects/:id/commits", s.requireMember, s.commits)
	api.Post("/projects/:id/ask", s.requireMember, s.ask)
	api.Post("/projects/:id/questions", s.requireMember, s.saveQuestion)
	api.Get("/projects/:id/questions", s.requireMember, s.listQuestions)
	api.Get("/projects/:id/members", s.listMembers)
	api.Post("/projects/:id/members", s.addMember)
	api.Get("/users/:id/credits", s.credits)

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown ends open streams and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

func requireUser(c fiber.Ctx) error {
	id := c.Get(UserHeader)
	if id == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing " + UserHeader + " header"})
	}
	c.Locals("userID", id)
	return c.Next()
}

// requireOwner answers 404 for projects the caller does not own.
func (s *Server) requireOwner(c fiber.Ctx) error {
	if err := s.deps.Service.Authorize(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.Next()
}

func userID(c fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}

// fail maps domain errors to status codes.
func (s *Server) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": err.Error()}

	var ice *credits.InsufficientCreditsError
	switch {
	case errors.As(err, &ice):
		status = fiber.StatusPaymentRequired
		body["required"] = ice.Required
		body["available"] = ice.Available
	case errors.Is(err, github.ErrInvalidRepositoryReference), errors.Is(err, qa.ErrEmptyQuestion),
		errors.Is(err, ingest.ErrInvalidMember):
		status = fiber.StatusBadRequest
	case errors.Is(err, ingest.ErrProjectNotFound), errors.Is(err, store.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ingest.ErrAlreadyQueued), errors.Is(err, ingest.ErrAlreadyRunning), errors.Is(err, qa.ErrNotReady):
		status = fiber.StatusConflict
	case errors.Is(err, github.ErrHostUnavailable):
		status = fiber.StatusBadGateway
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(body)
}
