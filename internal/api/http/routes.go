package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/terroirdata/vineclimate/internal/climate"
	"github.com/terroirdata/vineclimate/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. All handlers are
// thin pass-throughs to the pipeline components.
func RegisterRoutes(app *fiber.App, st climate.Store, syncEngine *climate.SyncEngine, composer *climate.Composer) {
	v1 := app.Group("/api/v1")

	v1.Get("/regions", func(c *fiber.Ctx) error {
		regions, err := st.ListRegions(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list regions")
		}
		return c.JSON(fiber.Map{"regions": regions})
	})

	// Force resync. The single-flight guard lives in the scheduler pipeline;
	// this trigger runs the sync engine directly and relies on the store
	// transaction for consistency.
	v1.Post("/sync", func(c *fiber.Ctx) error {
		report, err := syncEngine.Sync(c.Context())
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.JSON(report)
	})

	// Force insight recompute for one region.
	v1.Post("/regions/:id/insights", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid region id")
		}

		if _, err := st.GetRegion(c.Context(), int64(id)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "region not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load region")
		}

		ins, err := composer.RecomputeRegion(c.Context(), int64(id))
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(ins)
	})

	v1.Get("/insights", func(c *fiber.Ctx) error {
		var q insightsQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if q.Region != nil {
			ins, err := st.LatestInsightForRegion(c.Context(), *q.Region)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fiber.NewError(fiber.StatusNotFound, "no insights for requested region")
				}
				return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch insights")
			}
			return c.JSON(fiber.Map{"insights": []climate.Insight{ins}})
		}

		insights, err := st.LatestInsights(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch insights")
		}
		return c.JSON(fiber.Map{"insights": insights})
	})
}

// insightsQuery holds the optional region filter for the insights endpoint.
type insightsQuery struct {
	Region *int64 `validate:"omitempty,gt=0"`
}

func (q *insightsQuery) bind(c *fiber.Ctx) error {
	if raw := c.Query("region"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.New("region must be a positive integer")
		}
		q.Region = &id
	}
	return validate.Struct(q)
}

// statusForError maps tagged pipeline errors onto HTTP statuses.
func statusForError(err error) int {
	switch climate.KindOf(err) {
	case climate.KindTransientFetch:
		return fiber.StatusBadGateway
	case climate.KindDataIntegrity:
		return fiber.StatusUnprocessableEntity
	case climate.KindValidation:
		return fiber.StatusBadRequest
	case climate.KindComputation:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}
