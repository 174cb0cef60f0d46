package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/config"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gofiber/fiber/v2"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller extracted from a token
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// TokenValidator turns a bearer token into an Identity
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
}

// CustomClaims contains custom claims from Auth0 token
type CustomClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Validate validates the custom claims (required by validator.CustomClaims interface)
func (c *CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// Auth0Validator validates RS256 tokens against the tenant's JWKS
type Auth0Validator struct {
	validator *validator.Validator
}

// NewAuth0Validator sets up a JWKS-backed RS256 validator
func NewAuth0Validator(domain, audience string) (*Auth0Validator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse Auth0 issuer URL: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}

	return &Auth0Validator{validator: jwtValidator}, nil
}

func (v *Auth0Validator) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims format", ErrInvalidToken)
	}

	id := &Identity{Subject: validatedClaims.RegisteredClaims.Subject}
	if customClaims, ok := validatedClaims.CustomClaims.(*CustomClaims); ok {
		id.Email = customClaims.Email
		id.Name = customClaims.Name
	}
	return id, nil
}

// NewValidator picks Auth0 when it is configured, else the shared-secret
// validator. A nil validator means the API is unauthenticated.
func NewValidator(cfg *config.Config) (TokenValidator, error) {
	switch {
	case cfg.Auth0Enabled():
		return NewAuth0Validator(cfg.Auth0Domain, cfg.Auth0Audience)
	case cfg.JWTSecret != "":
		return NewHS256Validator([]byte(cfg.JWTSecret)), nil
	default:
		return nil, nil
	}
}

// Middleware creates a bearer token validation middleware for Fiber
func Middleware(v TokenValidator, log logging.Logger) fiber.Handler {
	if log == nil {
		log = logging.Nop()
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{
				"error": "missing authorization header",
			})
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return c.Status(401).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		id, err := v.ValidateToken(c.UserContext(), token)
		if err != nil {
			log.Warn(c.UserContext(), "Token validation failed", "error", err)
			return c.Status(401).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals("subject", id.Subject)
		c.Locals("email", id.Email)
		c.Locals("name", id.Name)

		return c.Next()
	}
}

// GetSubject extracts the token subject from the context
func GetSubject(c *fiber.Ctx) string {
	if sub, ok := c.Locals("subject").(string); ok {
		return sub
	}
	return ""
}

// GetEmail extracts the email from the context
func GetEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// GetName extracts the name from the context
func GetName(c *fiber.Ctx) string {
	if name, ok := c.Locals("name").(string); ok {
		return name
	}
	return ""
}
