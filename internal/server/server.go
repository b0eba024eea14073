// Package server exposes a compositing session over HTTP and streams its preview over
// a websocket.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZacxDev/video-compositor/internal/config"
	"github.com/ZacxDev/video-compositor/internal/logging"
	"github.com/ZacxDev/video-compositor/internal/pipeline"
	"github.com/ZacxDev/video-compositor/internal/style"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
)

type Config struct {
	Addr        string
	PreviewFPS  int
	JPEGQuality int
}

type Server struct {
	app     *fiber.App
	hub     *Hub
	handler *Handler
	session *pipeline.Session
	cfg     Config
	logger  *slog.Logger
}

func New(session *pipeline.Session, cfg Config, logger *slog.Logger) *Server {
	logger = logging.WithComponent(logging.OrDiscard(logger), "server")
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.PreviewFPS <= 0 {
		cfg.PreviewFPS = config.DefaultPreviewFPS
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = config.DefaultJPEGQuality
	}

	hub := NewHub(logger)
	s := &Server{
		hub:     hub,
		handler: NewHandler(session, hub, style.Validator(), cfg.JPEGQuality, logger),
		session: session,
		cfg:     cfg,
		logger:  logger,
	}
	s.app = s.routes()
	return s
}

// App returns the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestLogger(s.logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"state":  s.session.State(),
		})
	})

	api := app.Group("/api")
	api.Get("/session", s.handler.Session)
	api.Put("/style", s.handler.SetStyle)
	api.Get("/presets", s.handler.Presets)
	api.Post("/style/preset/:name", s.handler.ApplyPreset)
	api.Post("/playback/toggle", s.handler.TogglePlay)
	api.Post("/playback/seek", s.handler.Seek)
	api.Post("/export", s.handler.StartExport)
	api.Get("/exports", s.handler.Exports)
	api.Get("/exports/:name", s.handler.Download)
	api.Get("/preview.jpg", s.handler.Preview)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(func(c *websocket.Conn) {
		s.hub.HandleConnection(c)
	}))

	return app
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go s.pumpPreview(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.cfg.Addr))
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return errors.Wrap(err, "server shutdown error")
	}
	return nil
}

// pumpPreview pushes the canvas to websocket viewers at the preview rate whenever it
// changed since the last push.
func (s *Server) pumpPreview(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.PreviewFPS))
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.hub.Len() == 0 {
			continue
		}
		n := s.session.Composites()
		if n == 0 || n == last {
			continue
		}
		data, err := s.handler.encodePreview()
		if err != nil {
			s.logger.Debug("preview unavailable", slog.String("error", err.Error()))
			continue
		}
		last = n
		s.hub.BroadcastFrame(data)
	}
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("latency", time.Since(start)),
		)
		return err
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
