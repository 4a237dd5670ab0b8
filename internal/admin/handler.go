package admin

import (
	"bytes"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"

	"qindex/internal/engine"
	"qindex/internal/export"
	"qindex/internal/instrument"
	"qindex/internal/metadata"
	"qindex/internal/store"
)

// SchemaSource loads the current object model description.
type SchemaSource func() (*metadata.Schema, error)

type Handler struct {
	store    *store.Store
	searcher *engine.Searcher
	migrator *store.Migrator
	schema   SchemaSource
	syncOpts store.SyncOptions
	syncMu   sync.Mutex
}

func NewHandler(s *store.Store, searcher *engine.Searcher, mig *store.Migrator, schema SchemaSource, opts store.SyncOptions) *Handler {
	return &Handler{store: s, searcher: searcher, migrator: mig, schema: schema, syncOpts: opts}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, ql *instrument.QueryLogHandler, middleware ...fiber.Handler) {
	admin := app.Group("/api/admin", middleware...)

	admin.Get("/schema", h.Schema)
	admin.Get("/registry", h.Registry)
	admin.Post("/sync", h.Sync)
	admin.Get("/query-log", ql.List)
}

// Schema handles GET /api/admin/schema?format=json|text&rows=true&limit=n
func (h *Handler) Schema(c *fiber.Ctx) error {
	opts := export.Options{
		IncludeRows: c.QueryBool("rows", false),
		RowLimit:    c.QueryInt("limit", 0),
	}
	report, err := export.Collect(c.UserContext(), h.store, h.searcher.Registry(), opts)
	if err != nil {
		return fmt.Errorf("export schema: %w", err)
	}

	switch c.Query("format", "json") {
	case "json":
		return c.JSON(fiber.Map{"data": report})
	case "text":
		var buf bytes.Buffer
		if err := report.WriteText(&buf); err != nil {
			return fmt.Errorf("render schema: %w", err)
		}
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.Send(buf.Bytes())
	default:
		return engine.ValidationError([]engine.ErrorDetail{{Field: "format", Rule: "enum", Message: "format must be json or text"}})
	}
}

// Registry handles GET /api/admin/registry
func (h *Handler) Registry(c *fiber.Ctx) error {
	reg := h.searcher.Registry()
	enums := make([]string, 0)
	for _, e := range reg.Enums() {
		enums = append(enums, e.String())
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"table_prefix": reg.TablePrefix(),
		"entity_types": reg.Types().Entities(),
		"descriptors":  reg.Descriptors(),
		"enums":        enums,
	}})
}

// Sync handles POST /api/admin/sync. It reloads the schema description,
// synchronizes the database and publishes the new registry.
func (h *Handler) Sync(c *fiber.Ctx) error {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	schema, err := h.schema()
	if err != nil {
		return engine.MapError(err)
	}
	before := len(h.searcher.Registry().Descriptors())
	reg, err := h.migrator.Sync(c.UserContext(), schema, h.syncOpts)
	if err != nil {
		return engine.MapError(err)
	}
	h.searcher.Publish(reg)

	added := len(reg.Descriptors()) - before
	log.Printf("Schema synchronized: %d qualified names (%d new)", len(reg.Descriptors()), added)
	return c.JSON(fiber.Map{"data": fiber.Map{
		"qnames":       len(reg.Descriptors()),
		"added":        added,
		"entity_types": len(reg.Types().Entities()),
	}})
}
