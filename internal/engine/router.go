package engine

import "github.com/gofiber/fiber/v2"

// RegisterQueryRoutes registers the query and indexing routes. Writes go
// through authMW; queries are open.
func RegisterQueryRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	api := app.Group("/api")

	api.Post("/query", h.Query)
	api.Post("/query/compile", h.Compile)

	api.Put("/entities", authMW, h.PutEntities)
	api.Delete("/entities/:identity", authMW, h.DeleteEntity)
}
