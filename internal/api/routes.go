package api

import (
	"context"
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

// TemplateRepository persists card templates and their owners
type TemplateRepository interface {
	GetOrCreateUser(ctx context.Context, subject, email, name string) (*db.User, error)
	CreateTemplate(ctx context.Context, t *db.CardTemplate) (*db.CardTemplate, error)
	GetTemplateByUUID(ctx context.Context, id uuid.UUID) (*db.CardTemplate, error)
	ListTemplates(ctx context.Context, limit, offset int) ([]*db.CardTemplate, error)
	CountTemplates(ctx context.Context) (int, error)
	UpdateTemplate(ctx context.Context, id uuid.UUID, title, frontKey, backKey *string) (*db.CardTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

// Cache is the Redis-backed state the handlers share
type Cache interface {
	GetFields(ctx context.Context, templateID string, dest any) error
	SetFields(ctx context.Context, templateID string, fields any) error
	DeleteFields(ctx context.Context, templateID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	EnqueueMergeJob(ctx context.Context, batchID int64) (string, error)
}

// CardRenderer renders a template pair with field values
type CardRenderer interface {
	Render(ctx context.Context, card render.Card, fields map[string]string, opts render.Options) (*render.Result, error)
}

// Deps are the collaborators shared by all handlers
type Deps struct {
	Repo      TemplateRepository
	Store     storage.Store
	Cache     Cache
	Renderer  CardRenderer
	Validator auth.TokenValidator
	Logger    logging.Logger
	Config    *config.Config
}

// Handlers holds all API handlers
type Handlers struct {
	Card   *CardHandler
	Render *RenderHandler
	Batch  *BatchHandler
}

// NewHandlers creates all handlers with dependencies
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	validator := services.NewValidatorService()

	return &Handlers{
		Card:   NewCardHandler(deps, validator),
		Render: NewRenderHandler(deps, validator),
		Batch:  NewBatchHandler(deps),
	}
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App, handlers *Handlers, deps Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Card Generator API",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	v1 := app.Group("/v1")

	// Apply token validation only if an auth mode is configured
	if deps.Validator != nil {
		v1.Use(auth.Middleware(deps.Validator, deps.Logger))
	}

	// Card template endpoints
	v1.Get("/cards", handlers.Card.ListCards)
	v1.Post("/cards", handlers.Card.CreateCard)
	v1.Get("/cards/:uuid", handlers.Card.GetCard)
	v1.Patch("/cards/:uuid", handlers.Card.UpdateCard)
	v1.Put("/cards/:uuid", handlers.Card.UpdateCard)
	v1.Delete("/cards/:uuid", handlers.Card.DeleteCard)
	v1.Get("/cards/:uuid/front.svg", handlers.Card.GetFrontSVG)
	v1.Get("/cards/:uuid/back.svg", handlers.Card.GetBackSVG)

	// Rendering endpoints
	v1.Get("/cards/:uuid/fields", handlers.Render.GetFields)
	v1.Post("/cards/:uuid/render", handlers.Render.RenderCard)

	// Print queue batches
	v1.Post("/batches/:id/merge", handlers.Batch.EnqueueMerge)
}
