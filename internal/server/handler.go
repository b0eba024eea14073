package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ZacxDev/video-compositor/internal/export"
	"github.com/ZacxDev/video-compositor/internal/pipeline"
	"github.com/ZacxDev/video-compositor/internal/preset"
	"github.com/ZacxDev/video-compositor/internal/server/response"
	"github.com/ZacxDev/video-compositor/internal/style"
	"github.com/ZacxDev/video-compositor/pkg/types"
	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// SeekRequest moves the preview to a position in seconds
type SeekRequest struct {
	Seconds float64 `json:"seconds" validate:"gte=0"`
}

// PresetInfo describes one registered style preset
type PresetInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Style       style.Raw `json:"style"`
}

type Handler struct {
	session     *pipeline.Session
	hub         *Hub
	validator   *validator.Validate
	jpegQuality int
	logger      *slog.Logger
}

func NewHandler(session *pipeline.Session, hub *Hub, v *validator.Validate, jpegQuality int, logger *slog.Logger) *Handler {
	return &Handler{
		session:     session,
		hub:         hub,
		validator:   v,
		jpegQuality: jpegQuality,
		logger:      logger,
	}
}

// Session handles GET /api/session
func (h *Handler) Session(c *fiber.Ctx) error {
	return response.OK(c, h.session.Info())
}

// SetStyle handles PUT /api/style
func (h *Handler) SetStyle(c *fiber.Ctx) error {
	var req style.Raw
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	cfg, err := style.Parse(req)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	if err := h.session.SetStyle(cfg); err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.OK(c, h.session.Info())
}

// ApplyPreset handles POST /api/style/preset/:name
func (h *Handler) ApplyPreset(c *fiber.Ctx) error {
	p, err := preset.Get(c.Params("name"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	if err := h.session.SetStyle(p.GetStyle()); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, h.session.Info())
}

// Presets handles GET /api/presets
func (h *Handler) Presets(c *fiber.Ctx) error {
	names := preset.Names()
	out := make([]PresetInfo, 0, len(names))
	for _, name := range names {
		p, _ := preset.Get(name)
		out = append(out, PresetInfo{
			Name:        p.GetName(),
			Description: p.GetDescription(),
			Style:       p.GetStyle().Raw(),
		})
	}
	return response.OK(c, out)
}

// TogglePlay handles POST /api/playback/toggle
func (h *Handler) TogglePlay(c *fiber.Ctx) error {
	state, err := h.session.TogglePlay()
	if err != nil {
		return sessionError(c, err)
	}
	h.hub.BroadcastState(state)
	return response.OK(c, h.session.Info())
}

// Seek handles POST /api/playback/seek
func (h *Handler) Seek(c *fiber.Ctx) error {
	var req SeekRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.session.Seek(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, h.session.Info())
}

// StartExport handles POST /api/export
func (h *Handler) StartExport(c *fiber.Ctx) error {
	err := h.session.StartExport(context.Background(), func(res *export.Result, err error) {
		if err != nil {
			h.hub.BroadcastExport(types.ExportStatusFailed, nil, err)
		} else {
			h.hub.BroadcastExport(types.ExportStatusCompleted, res, nil)
		}
		h.hub.BroadcastState(h.session.State())
	})
	if err != nil {
		return sessionError(c, err)
	}

	h.hub.BroadcastExport(types.ExportStatusRunning, nil, nil)
	h.hub.BroadcastState(types.SessionStateExporting)
	return response.Accepted(c, fiber.Map{"status": types.ExportStatusRunning})
}

// Exports handles GET /api/exports
func (h *Handler) Exports(c *fiber.Ctx) error {
	return response.OK(c, h.session.Exports())
}

// Download handles GET /api/exports/:name
func (h *Handler) Download(c *fiber.Ctx) error {
	name := c.Params("name")
	for _, res := range h.session.Exports() {
		if res.Name == name {
			return c.Download(res.Path, res.Name)
		}
	}
	return response.NotFound(c, "export not found")
}

// Preview handles GET /api/preview.jpg
func (h *Handler) Preview(c *fiber.Ctx) error {
	data, err := h.encodePreview()
	if err != nil {
		return sessionError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

func (h *Handler) encodePreview() ([]byte, error) {
	img, err := h.session.Preview()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(h.jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, export.ErrInProgress):
		return response.Conflict(c, err.Error())
	case errors.Is(err, pipeline.ErrNotReady):
		return response.NotReady(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
