package http

import (
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	pinType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Pin",
		Fields: graphql.Fields{
			"id":      &graphql.Field{Type: graphql.String},
			"lat":     &graphql.Field{Type: graphql.Float},
			"lng":     &graphql.Field{Type: graphql.Float},
			"label":   &graphql.Field{Type: graphql.String},
			"address": &graphql.Field{Type: graphql.String},
			"pinKind": &graphql.Field{Type: graphql.String},
			"draftId": &graphql.Field{Type: graphql.String},
			"isNew":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	pinsResultType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PinsResult",
		Fields: graphql.Fields{
			"points": &graphql.Field{Type: graphql.NewList(pinType)},
			"drafts": &graphql.Field{Type: graphql.NewList(pinType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"pinsInBounds": &graphql.Field{
				Type:        pinsResultType,
				Description: "Listing pins and visit drafts inside a rectangle",
				Args: graphql.FieldConfigArgument{
					"swLat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"swLng":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"neLat":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"neLng":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"draftState": &graphql.ArgumentConfig{Type: graphql.String},
					"isNew":      &graphql.ArgumentConfig{Type: graphql.Boolean},
					"isOld":      &graphql.ArgumentConfig{Type: graphql.Boolean},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := domain.PinsQuery{
						Bounds: domain.GeoBounds{
							SW: domain.LatLng{Lat: p.Args["swLat"].(float64), Lng: p.Args["swLng"].(float64)},
							NE: domain.LatLng{Lat: p.Args["neLat"].(float64), Lng: p.Args["neLng"].(float64)},
						},
					}
					if s, ok := p.Args["draftState"].(string); ok {
						q.DraftState = domain.DraftState(s)
					}
					if b, ok := p.Args["isNew"].(bool); ok {
						q.IsNew = &b
					}
					if b, ok := p.Args["isOld"].(bool); ok {
						q.IsOld = &b
					}
					if !q.DraftState.Valid() {
						return nil, fmt.Errorf("unknown draftState %q", q.DraftState)
					}

					res, err := deps.Pins.PinsInBounds(p.Context, q)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"points": pinsToMaps(res.Points),
						"drafts": pinsToMaps(res.Drafts),
					}, nil
				},
			},
			"pin": &graphql.Field{
				Type:        pinType,
				Description: "Get a listing pin by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Points == nil {
						return nil, fmt.Errorf("pin lookup not available")
					}
					pin, err := deps.Points.GetPoint(p.Context, p.Args["id"].(string))
					if err != nil || pin == nil {
						return nil, err
					}
					return pinToMap(*pin), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// pinToMap flattens a record for GraphQL. Non-finite coordinates become null.
func pinToMap(r domain.PinRecord) map[string]interface{} {
	m := map[string]interface{}{
		"id":      r.ID,
		"label":   r.DisplayLabel(),
		"pinKind": r.PinKind,
		"draftId": r.DraftID,
	}
	if !math.IsNaN(r.Lat) && !math.IsInf(r.Lat, 0) {
		m["lat"] = r.Lat
	}
	if !math.IsNaN(r.Lng) && !math.IsInf(r.Lng, 0) {
		m["lng"] = r.Lng
	}
	if r.Address != nil {
		m["address"] = *r.Address
	}
	if r.IsNew != nil {
		m["isNew"] = *r.IsNew
	}
	return m
}

func pinsToMaps(rs []domain.PinRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rs))
	for _, r := range rs {
		out = append(out, pinToMap(r))
	}
	return out
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
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
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
