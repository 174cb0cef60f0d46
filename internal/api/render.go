package api

import (
	"context"
	"errors"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/auth"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/cache"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/db"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// RenderHandler lists template fields and renders cards
type RenderHandler struct {
	repo      TemplateRepository
	store     storage.Store
	cache     Cache
	renderer  CardRenderer
	cfg       *config.Config
	log       logging.Logger
	validator *services.ValidatorService
}

// NewRenderHandler creates a new render handler
func NewRenderHandler(deps Deps, validator *services.ValidatorService) *RenderHandler {
	return &RenderHandler{
		repo:      deps.Repo,
		store:     deps.Store,
		cache:     deps.Cache,
		renderer:  deps.Renderer,
		cfg:       deps.Config,
		log:       deps.Logger,
		validator: validator,
	}
}

func (h *RenderHandler) loadCard(ctx context.Context, t *db.CardTemplate) (render.Card, error) {
	front, err := h.store.Get(ctx, t.FrontKey)
	if err != nil {
		return render.Card{}, err
	}
	back, err := h.store.Get(ctx, t.BackKey)
	if err != nil {
		return render.Card{}, err
	}
	return render.Card{ID: t.UUID.String(), FrontSVG: front, BackSVG: back}, nil
}

// GetFields handles GET /v1/cards/:uuid/fields - lists the fields a render accepts
func (h *RenderHandler) GetFields(c *fiber.Ctx) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}

	ctx := c.UserContext()
	key := t.UUID.String()

	// Try cache first
	var fields []render.Field
	if h.cache != nil {
		err := h.cache.GetFields(ctx, key, &fields)
		if err == nil {
			return c.JSON(fiber.Map{"fields": fields})
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.log.Warn(ctx, "Field cache read failed", "uuid", key, "error", err)
		}
	}

	card, err := h.loadCard(ctx, t)
	if err != nil {
		h.log.Error(ctx, "Failed to load template", "uuid", key, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to load template",
		})
	}

	fields, err = render.ExtractFields(card.FrontSVG, card.BackSVG)
	if err != nil {
		h.log.Error(ctx, "Failed to extract fields", "uuid", key, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to extract fields",
		})
	}

	if h.cache != nil {
		if err := h.cache.SetFields(ctx, key, fields); err != nil {
			h.log.Warn(ctx, "Field cache write failed", "uuid", key, "error", err)
		}
	}

	return c.JSON(fiber.Map{"fields": fields})
}

// allowRender applies the per-caller render rate limit. Cache errors fail open.
func (h *RenderHandler) allowRender(c *fiber.Ctx) bool {
	if h.cache == nil || h.cfg == nil || h.cfg.RateLimitRenderPerMinute <= 0 {
		return true
	}

	caller := auth.GetSubject(c)
	if caller == "" {
		caller = c.IP()
	}

	allowed, err := h.cache.CheckRateLimit(c.UserContext(), "render:"+caller, h.cfg.RateLimitRenderPerMinute, time.Minute)
	if err != nil {
		h.log.Warn(c.UserContext(), "Rate limit check failed", "error", err)
		return true
	}
	return allowed
}

// RenderCard handles POST /v1/cards/:uuid/render - applies fields and returns PDF and PNG data URIs
func (h *RenderHandler) RenderCard(c *fiber.Ctx) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}

	var req services.RenderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validator.ValidateRenderRequest(&req); err != nil {
		return validationResponse(c, err)
	}

	if !h.allowRender(c) {
		return c.Status(429).JSON(fiber.Map{
			"error": "rate limit exceeded",
		})
	}

	ctx := c.UserContext()

	card, err := h.loadCard(ctx, t)
	if err != nil {
		h.log.Error(ctx, "Failed to load template", "uuid", t.UUID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to load template",
		})
	}

	result, err := h.renderer.Render(ctx, card, req.Fields, render.Options{
		CreateQRCode: req.WantsQRCode(),
		FrontOnly:    req.FrontOnly,
	})
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(fiber.Map{"files": result})
}

func (h *RenderHandler) renderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return validationResponse(c, err)
	case errors.Is(err, services.ErrQRCodeCapacity):
		return c.Status(400).JSON(fiber.Map{
			"error": "QR code value exceed limit.",
		})
	case errors.Is(err, render.ErrTemplateSyntax):
		return c.Status(422).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, convert.ErrNoInput), errors.Is(err, convert.ErrConversionFailed):
		h.log.Error(c.UserContext(), "Card conversion failed", "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to convert card",
		})
	default:
		h.log.Error(c.UserContext(), "Card render failed", "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to render card",
		})
	}
}
