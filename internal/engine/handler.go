package engine

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"qindex/internal/indexing"
)

type Handler struct {
	searcher *Searcher
}

func NewHandler(s *Searcher) *Handler {
	return &Handler{searcher: s}
}

// Query handles POST /api/query
func (h *Handler) Query(c *fiber.Ctx) error {
	var search Search
	if err := c.BodyParser(&search); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if search.Type == "" {
		return ValidationError([]ErrorDetail{{Field: "type", Rule: "required", Message: "type is required"}})
	}

	if search.Count {
		n, err := h.searcher.Count(c.UserContext(), search)
		if err != nil {
			return MapError(err)
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"count": n}})
	}

	ids, err := h.searcher.Find(c.UserContext(), search)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(fiber.Map{
		"data": ids,
		"meta": fiber.Map{
			"first":    search.First,
			"max":      search.Max,
			"returned": len(ids),
		},
	})
}

// Compile handles POST /api/query/compile
func (h *Handler) Compile(c *fiber.Ctx) error {
	var search Search
	if err := c.BodyParser(&search); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if search.Type == "" {
		return ValidationError([]ErrorDetail{{Field: "type", Rule: "required", Message: "type is required"}})
	}
	compiled, err := h.searcher.Explain(search)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(fiber.Map{"data": compiled})
}

// PutEntities handles PUT /api/entities
func (h *Handler) PutEntities(c *fiber.Ctx) error {
	var body struct {
		Entities []indexing.EntityState `json:"entities"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if len(body.Entities) == 0 {
		return ValidationError([]ErrorDetail{{Field: "entities", Rule: "required", Message: "at least one entity is required"}})
	}

	written, err := h.searcher.Index(c.UserContext(), body.Entities...)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(fiber.Map{"data": written})
}

// DeleteEntity handles DELETE /api/entities/:identity
func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	identity := c.Params("identity")
	n, err := h.searcher.Remove(c.UserContext(), identity)
	if err != nil {
		return MapError(err)
	}
	if n == 0 {
		return NotFoundError("entity", identity)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"removed": n}})
}

// ErrorHandler renders every error returned by a handler as an ErrorResponse.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}

	var appErr *AppError
	if errors.As(MapError(err), &appErr) {
		if appErr.Status >= 500 {
			log.Printf("ERROR: %v", err)
		}
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
