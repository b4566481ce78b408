package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/opentraffic/analyst/internal/core/domain"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// regionQuery is the query string of GET /v1/region.
type regionQuery struct {
	North   *float64 `query:"north" validate:"required,latitude"`
	South   *float64 `query:"south" validate:"required,latitude"`
	East    *float64 `query:"east" validate:"required,longitude"`
	West    *float64 `query:"west" validate:"required,longitude"`
	Start   string   `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End     string   `query:"end" validate:"omitempty,datetime=2006-01-02"`
	Compare bool     `query:"compare"`
}

// routeQuery is the query string of GET /v1/route.
type routeQuery struct {
	Waypoints string `query:"waypoints" validate:"required,max=4096"`
	Start     string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End       string `query:"end" validate:"omitempty,datetime=2006-01-02"`
	Compare   bool   `query:"compare"`
}

// tilesQuery is the query string of GET /v1/tiles.
type tilesQuery struct {
	North *float64 `query:"north" validate:"required,latitude"`
	South *float64 `query:"south" validate:"required,latitude"`
	East  *float64 `query:"east" validate:"required,longitude"`
	West  *float64 `query:"west" validate:"required,longitude"`
}

func bbox(north, south, east, west *float64) *domain.BoundingBox {
	return &domain.BoundingBox{North: *north, South: *south, East: *east, West: *west}
}

// speedQuery builds the observation window. The end date is inclusive.
func speedQuery(start, end string, compare bool) (domain.SpeedQuery, error) {
	q := domain.SpeedQuery{Compare: compare}
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return q, fmt.Errorf("start: %w", err)
		}
		q.Start = t
	}
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return q, fmt.Errorf("end: %w", err)
		}
		q.End = t.AddDate(0, 0, 1)
	}
	if !q.Start.IsZero() && !q.End.IsZero() && !q.Start.Before(q.End) {
		return q, errors.New("start must not be after end")
	}
	return q, nil
}

// parseQuery fills and validates a query struct.
func parseQuery(c *fiber.Ctx, out any) error {
	if err := c.QueryParser(out); err != nil {
		return errors.New("invalid query parameters")
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// RegionHandler runs the region pipeline for a bounding box.
func RegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q regionQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}
		sq, err := speedQuery(q.Start, q.End, q.Compare)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.Region.Analyze(c.UserContext(), bbox(q.North, q.South, q.East, q.West), sq)
		if err != nil {
			return pipelineError(c, err)
		}
		return c.JSON(res)
	}
}

// ClearRegionHandler removes the published region.
func ClearRegionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := deps.Region.Clear(c.UserContext())
		if err != nil {
			return errInternal(c, "failed to clear region")
		}
		return c.JSON(res)
	}
}

// RegionStateHandler returns the state of the latest query.
func RegionStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Region.Status())
	}
}

// SignalsHandler returns the most recent UI state signals.
func SignalsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Sources == nil {
			return errServiceUnavailable(c, "source store not configured")
		}
		return c.JSON(fiber.Map{"signals": deps.Sources.Signals()})
	}
}

// RouteHandler runs the pipeline along a route through the given waypoints.
func RouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q routeQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}
		waypoints, err := domain.ParseWaypoints(q.Waypoints)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		sq, err := speedQuery(q.Start, q.End, q.Compare)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.Region.AnalyzeRoute(c.UserContext(), waypoints, sq)
		if err != nil {
			return pipelineError(c, err)
		}
		return c.JSON(res)
	}
}

// SourceHandler returns a published data source as GeoJSON.
func SourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Sources == nil {
			return errServiceUnavailable(c, "source store not configured")
		}
		name := c.Params("name")
		fc, ok := deps.Sources.DataSource(name)
		if !ok {
			return errNotFound(c, "no data source named "+name)
		}
		return c.JSON(fc, "application/geo+json")
	}
}

// TilesHandler resolves a bounding box into tile suffixes without fetching.
func TilesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var q tilesQuery
		if err := parseQuery(c, &q); err != nil {
			return errBadRequest(c, err.Error())
		}
		suffixes, err := deps.Tiles.Suffixes(*bbox(q.North, q.South, q.East, q.West))
		if errors.Is(err, domain.ErrTooManyTiles) {
			return errTooManyTiles(c, err.Error())
		}
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(fiber.Map{"tiles": suffixes, "count": len(suffixes)})
	}
}

// CachedTilesHandler lists the tile suffixes held in the process cache.
func CachedTilesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		keys := deps.Tiles.Cached()
		p := paginate(len(keys), c.QueryInt("offset", 0), c.QueryInt("limit", 100))
		SetLinkHeaders(c, p)
		return c.JSON(PaginatedResponse{
			Data:       keys[p.Offset:p.end()],
			Pagination: p,
		})
	}
}
