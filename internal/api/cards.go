package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/auth"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/db"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	sideFront = "front"
	sideBack  = "back"

	maxSVGUploadBytes = 5 << 20
)

// CardHandler handles card template CRUD operations
type CardHandler struct {
	repo      TemplateRepository
	store     storage.Store
	cache     Cache
	cfg       *config.Config
	log       logging.Logger
	validator *services.ValidatorService
}

// NewCardHandler creates a new card handler
func NewCardHandler(deps Deps, validator *services.ValidatorService) *CardHandler {
	return &CardHandler{
		repo:      deps.Repo,
		store:     deps.Store,
		cache:     deps.Cache,
		cfg:       deps.Config,
		log:       deps.Logger,
		validator: validator,
	}
}

// CardResponse represents a card template in API responses
type CardResponse struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	FrontSVG  string    `json:"front_svg"`
	BackSVG   string    `json:"back_svg"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toResponse converts db.CardTemplate to CardResponse
func (h *CardHandler) toResponse(t *db.CardTemplate) *CardResponse {
	base := h.cfg.BaseURL + "/v1/cards/" + t.UUID.String()
	return &CardResponse{
		UUID:      t.UUID.String(),
		Title:     t.Title,
		FrontSVG:  base + "/front.svg",
		BackSVG:   base + "/back.svg",
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// getUserID resolves the caller to a user row; unauthenticated deployments have none
func (h *CardHandler) getUserID(c *fiber.Ctx) (*uuid.UUID, error) {
	subject := auth.GetSubject(c)
	if subject == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	user, err := h.repo.GetOrCreateUser(ctx, subject, auth.GetEmail(c), auth.GetName(c))
	if err != nil {
		return nil, err
	}
	return &user.ID, nil
}

// lookup parses :uuid and loads the template, writing the error response itself
func lookup(c *fiber.Ctx, repo TemplateRepository) (*db.CardTemplate, error) {
	id, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return nil, c.Status(404).JSON(fiber.Map{
			"error": "card not found",
		})
	}

	t, err := repo.GetTemplateByUUID(c.UserContext(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, c.Status(404).JSON(fiber.Map{
			"error": "card not found",
		})
	}
	if err != nil {
		return nil, c.Status(500).JSON(fiber.Map{
			"error": "failed to get card",
		})
	}
	return t, nil
}

// readUpload reads a multipart SVG; a missing part yields ok=false
func readUpload(form *multipart.Form, field string) (services.TemplateFile, bool, error) {
	if form == nil || len(form.File[field]) == 0 {
		return services.TemplateFile{}, false, nil
	}
	fh := form.File[field][0]
	if fh.Size > maxSVGUploadBytes {
		return services.TemplateFile{}, false, &services.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s: File is larger than %d bytes.", field, maxSVGUploadBytes),
		}
	}

	content, err := readFileHeader(fh)
	if err != nil {
		return services.TemplateFile{}, false, err
	}
	return services.TemplateFile{Filename: fh.Filename, Content: content}, true, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func validationResponse(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(400).JSON(fiber.Map{
			verr.Field: verr.Message,
		})
	}
	return c.Status(400).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// CreateCard handles POST /v1/cards - uploads a new front/back template pair
func (h *CardHandler) CreateCard(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid multipart body",
		})
	}

	title := c.FormValue("title")
	files := map[string]services.TemplateFile{}

	for _, field := range []string{"front_svg", "back_svg"} {
		f, ok, err := readUpload(form, field)
		if err != nil {
			if errors.Is(err, services.ErrValidation) {
				return validationResponse(c, err)
			}
			return c.Status(400).JSON(fiber.Map{
				"error": "invalid multipart body",
			})
		}
		if ok {
			files[field] = f
		}
	}

	if err := h.validator.ValidateTemplateUpload(title, files); err != nil {
		return validationResponse(c, err)
	}

	ctx := c.UserContext()

	userID, err := h.getUserID(c)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to get user",
		})
	}

	id := uuid.New()
	t := &db.CardTemplate{
		UUID:      id,
		Title:     title,
		FrontKey:  storage.TemplateKey(id, sideFront),
		BackKey:   storage.TemplateKey(id, sideBack),
		CreatedBy: userID,
	}

	if err := h.store.Put(ctx, t.FrontKey, files["front_svg"].Content, render.MimeSVG); err != nil {
		h.log.Error(ctx, "Failed to store template", "uuid", id, "side", sideFront, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to store template",
		})
	}
	if err := h.store.Put(ctx, t.BackKey, files["back_svg"].Content, render.MimeSVG); err != nil {
		h.log.Error(ctx, "Failed to store template", "uuid", id, "side", sideBack, "error", err)
		h.removeObjects(ctx, t.FrontKey)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to store template",
		})
	}

	created, err := h.repo.CreateTemplate(ctx, t)
	if err != nil {
		h.log.Error(ctx, "Failed to create template", "uuid", id, "error", err)
		h.removeObjects(ctx, t.FrontKey, t.BackKey)
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to create card",
		})
	}

	return c.Status(201).JSON(h.toResponse(created))
}

// ListCards handles GET /v1/cards - lists templates with pagination
func (h *CardHandler) ListCards(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.UserContext()

	templates, err := h.repo.ListTemplates(ctx, limit, offset)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to list cards",
		})
	}

	total, err := h.repo.CountTemplates(ctx)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to count cards",
		})
	}

	response := make([]*CardResponse, len(templates))
	for i, t := range templates {
		response[i] = h.toResponse(t)
	}

	return c.JSON(fiber.Map{
		"cards":  response,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetCard handles GET /v1/cards/:uuid - gets a specific template
func (h *CardHandler) GetCard(c *fiber.Ctx) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}
	return c.JSON(h.toResponse(t))
}

// UpdateCard handles PATCH/PUT /v1/cards/:uuid - replaces the title and/or documents
func (h *CardHandler) UpdateCard(c *fiber.Ctx) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}

	var title *string
	if v := c.FormValue("title"); v != "" {
		if err := h.validator.ValidateTitle(v); err != nil {
			return validationResponse(c, err)
		}
		title = &v
	}

	// title-only updates may arrive url-encoded
	form, _ := c.MultipartForm()

	uploads := map[string]services.TemplateFile{}
	for _, field := range []string{"front_svg", "back_svg"} {
		f, ok, err := readUpload(form, field)
		if err != nil {
			if errors.Is(err, services.ErrValidation) {
				return validationResponse(c, err)
			}
			return c.Status(400).JSON(fiber.Map{
				"error": "invalid multipart body",
			})
		}
		if !ok {
			continue
		}
		if err := h.validator.ValidateSVGFile(field, f); err != nil {
			return validationResponse(c, err)
		}
		uploads[field] = f
	}

	ctx := c.UserContext()
	keys := map[string]*string{}

	for field, side := range map[string]string{"front_svg": sideFront, "back_svg": sideBack} {
		f, ok := uploads[field]
		if !ok {
			continue
		}
		key := storage.TemplateKey(t.UUID, side)
		if err := h.store.Put(ctx, key, f.Content, render.MimeSVG); err != nil {
			h.log.Error(ctx, "Failed to store template", "uuid", t.UUID, "side", side, "error", err)
			return c.Status(500).JSON(fiber.Map{
				"error": "failed to store template",
			})
		}
		keys[side] = &key
	}

	updated, err := h.repo.UpdateTemplate(ctx, t.UUID, title, keys[sideFront], keys[sideBack])
	if errors.Is(err, db.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "card not found",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to update card",
		})
	}

	if len(keys) > 0 {
		h.invalidateFields(ctx, t.UUID)
	}

	return c.JSON(h.toResponse(updated))
}

// DeleteCard handles DELETE /v1/cards/:uuid - removes the template and its documents
func (h *CardHandler) DeleteCard(c *fiber.Ctx) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}

	ctx := c.UserContext()

	if err := h.repo.DeleteTemplate(ctx, t.UUID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to delete card",
		})
	}

	h.removeObjects(ctx, t.FrontKey, t.BackKey)
	h.invalidateFields(ctx, t.UUID)

	return c.SendStatus(204)
}

// GetFrontSVG handles GET /v1/cards/:uuid/front.svg
func (h *CardHandler) GetFrontSVG(c *fiber.Ctx) error {
	return h.sendDocument(c, sideFront)
}

// GetBackSVG handles GET /v1/cards/:uuid/back.svg
func (h *CardHandler) GetBackSVG(c *fiber.Ctx) error {
	return h.sendDocument(c, sideBack)
}

func (h *CardHandler) sendDocument(c *fiber.Ctx, side string) error {
	t, err := lookup(c, h.repo)
	if t == nil {
		return err
	}

	key := t.FrontKey
	if side == sideBack {
		key = t.BackKey
	}

	data, err := h.store.Get(c.UserContext(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{
			"error": "document not found",
		})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to read document",
		})
	}

	c.Set(fiber.HeaderContentType, render.MimeSVG)
	return c.Send(data)
}

func (h *CardHandler) removeObjects(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := h.store.Delete(ctx, key); err != nil {
			h.log.Warn(ctx, "Failed to remove template document", "key", key, "error", err)
		}
	}
}

func (h *CardHandler) invalidateFields(ctx context.Context, id uuid.UUID) {
	if h.cache == nil {
		return
	}
	if err := h.cache.DeleteFields(ctx, id.String()); err != nil {
		h.log.Warn(ctx, "Failed to invalidate field cache", "uuid", id, "error", err)
	}
}
