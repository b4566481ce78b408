package http

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/opentraffic/analyst/internal/core/domain"
	"github.com/opentraffic/analyst/internal/core/usecases"
	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

func boundsArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"north": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"south": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"east":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"west":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	}
}

func boundsFromArgs(args map[string]interface{}) domain.BoundingBox {
	return domain.BoundingBox{
		North: args["north"].(float64),
		South: args["south"].(float64),
		East:  args["east"].(float64),
		West:  args["west"].(float64),
	}
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BoundingBox",
		Fields: graphql.Fields{
			"north": &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"west":  &graphql.Field{Type: graphql.Float},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RegionStatus",
		Fields: graphql.Fields{
			"state":      &graphql.Field{Type: graphql.String},
			"query_id":   &graphql.Field{Type: graphql.String},
			"generation": &graphql.Field{Type: graphql.Int},
			"bounds":     &graphql.Field{Type: boundsType},
			"message":    &graphql.Field{Type: graphql.String},
			"features":   &graphql.Field{Type: graphql.Int},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	signalType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Signal",
		Fields: graphql.Fields{
			"kind":       &graphql.Field{Type: graphql.String},
			"message":    &graphql.Field{Type: graphql.String},
			"query_id":   &graphql.Field{Type: graphql.String},
			"generation": &graphql.Field{Type: graphql.Int},
			"time":       &graphql.Field{Type: graphql.DateTime},
		},
	})

	segmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Segment",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"level":         &graphql.Field{Type: graphql.Int},
			"tile_index":    &graphql.Field{Type: graphql.Int},
			"segment_index": &graphql.Field{Type: graphql.Int},
			"tile":          &graphql.Field{Type: graphql.String},
			"speed":         &graphql.Field{Type: graphql.Float},
			"percent_diff":  &graphql.Field{Type: graphql.Float},
			"count":         &graphql.Field{Type: graphql.Int},
		},
	})

	sourceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Source",
		Fields: graphql.Fields{
			"name":     &graphql.Field{Type: graphql.String},
			"features": &graphql.Field{Type: graphql.Int},
			"geojson":  &graphql.Field{Type: graphql.String},
		},
	})

	resultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RegionResult",
		Fields: graphql.Fields{
			"query_id":   &graphql.Field{Type: graphql.String},
			"generation": &graphql.Field{Type: graphql.Int},
			"state":      &graphql.Field{Type: graphql.String},
			"tiles":      &graphql.Field{Type: graphql.NewList(graphql.String)},
			"skipped":    &graphql.Field{Type: graphql.Int},
			"features":   &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"tiles": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Tile suffixes covering a bounding box",
				Args:        boundsArgs(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Tiles.Suffixes(boundsFromArgs(p.Args))
				},
			},
			"cachedTiles": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Tile suffixes held in the process cache",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					keys := deps.Tiles.Cached()
					pg := paginate(len(keys), p.Args["offset"].(int), p.Args["limit"].(int))
					return keys[pg.Offset:pg.end()], nil
				},
			},
			"regionStatus": &graphql.Field{
				Type:        statusType,
				Description: "State of the latest region query",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Region.Status(), nil
				},
			},
			"signals": &graphql.Field{
				Type:        graphql.NewList(signalType),
				Description: "Most recent UI state signals",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Sources == nil {
						return nil, nil
					}
					return deps.Sources.Signals(), nil
				},
			},
			"segment": &graphql.Field{
				Type:        segmentType,
				Description: "Decode a segment id and look up its speed",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return resolveSegment(p, deps)
				},
			},
			"source": &graphql.Field{
				Type:        sourceType,
				Description: "A published data source",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "routes"},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Sources == nil {
						return nil, nil
					}
					name := p.Args["name"].(string)
					fc, ok := deps.Sources.DataSource(name)
					if !ok {
						return nil, nil
					}
					data, err := json.Marshal(fc)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"name":     name,
						"features": len(fc.Features),
						"geojson":  string(data),
					}, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"analyzeRegion": &graphql.Field{
				Type:        resultType,
				Description: "Run the region pipeline and publish the result",
				Args: func() graphql.FieldConfigArgument {
					args := boundsArgs()
					args["compare"] = &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false}
					return args
				}(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					b := boundsFromArgs(p.Args)
					q := domain.SpeedQuery{Compare: p.Args["compare"].(bool)}
					res, err := deps.Region.Analyze(p.Context, &b, q)
					if err != nil {
						if errors.Is(err, domain.ErrRegionTooLarge) {
							return nil, errors.New(domain.MessageRegionTooLarge)
						}
						return nil, err
					}
					return resultMap(res), nil
				},
			},
			"clearRegion": &graphql.Field{
				Type:        resultType,
				Description: "Remove the published region",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := deps.Region.Clear(p.Context)
					if err != nil {
						return nil, err
					}
					return resultMap(res), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func resolveSegment(p graphql.ResolveParams, deps *Dependencies) (interface{}, error) {
	id, err := osmlr.ParseSegmentID(p.Args["id"].(string))
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{
		"id":            strconv.FormatUint(id.ID, 10),
		"level":         id.Level,
		"tile_index":    int(id.TileIndex),
		"segment_index": int(id.SegmentIndex),
		"tile":          osmlr.Suffix(id.Level, int(id.TileIndex)),
	}
	if deps.Speeds != nil {
		table, err := deps.Speeds.Speeds(p.Context, []domain.SegmentID{id}, domain.SpeedQuery{})
		if err != nil {
			return nil, err
		}
		if rec, ok := table[id.ID]; ok {
			out["speed"] = rec.Speed
			out["percent_diff"] = rec.PercentDiff
			out["count"] = int(rec.Count)
		}
	}
	return out, nil
}

func resultMap(res *usecases.RegionResult) map[string]interface{} {
	m := map[string]interface{}{
		"query_id":   res.QueryID,
		"generation": int(res.Generation),
		"state":      string(res.State),
		"tiles":      res.Tiles,
		"skipped":    len(res.Skipped),
		"features":   0,
	}
	if res.Collection != nil {
		m["features"] = len(res.Collection.Features)
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
