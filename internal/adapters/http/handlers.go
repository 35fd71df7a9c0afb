package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pinmap/internal/core/domain"
	"github.com/samirrijal/pinmap/internal/core/ports"
	"github.com/samirrijal/pinmap/internal/core/viewport"
)

// parsePinsQuery reads the bounds and flags of a pins-in-bounds request.
func parsePinsQuery(c *fiber.Ctx) (domain.PinsQuery, error) {
	var q domain.PinsQuery
	coords := []struct {
		name string
		dst  *float64
	}{
		{"swLat", &q.Bounds.SW.Lat},
		{"swLng", &q.Bounds.SW.Lng},
		{"neLat", &q.Bounds.NE.Lat},
		{"neLng", &q.Bounds.NE.Lng},
	}
	for _, p := range coords {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			return q, fmt.Errorf("%s is required", p.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, fmt.Errorf("%s must be a number", p.name)
		}
		*p.dst = v
	}
	if !q.Bounds.Valid() {
		return q, errors.New("bounds must span a non-empty rectangle")
	}

	q.DraftState = domain.DraftState(c.Query("draftState"))
	if !q.DraftState.Valid() {
		return q, fmt.Errorf("unknown draftState %q", q.DraftState)
	}

	var err error
	if q.IsNew, err = parseFlag(c, "isNew"); err != nil {
		return q, err
	}
	if q.IsOld, err = parseFlag(c, "isOld"); err != nil {
		return q, err
	}
	return q, nil
}

func parseFlag(c *fiber.Ctx, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", name)
	}
	return &v, nil
}

// PinsMapHandler returns the listing pins and drafts inside a rectangle.
func PinsMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parsePinsQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		res, err := deps.Pins.PinsInBounds(c.UserContext(), q)
		if err != nil {
			return pinsError(c, err)
		}
		return c.JSON(res.Normalized())
	}
}

// GetPinHandler returns one listing pin by id.
func GetPinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Points == nil {
			return errUnavailable(c, "pin lookup not available")
		}
		p, err := deps.Points.GetPoint(c.UserContext(), c.Params("id"))
		if err != nil {
			return pinsError(c, err)
		}
		if p == nil {
			return errNotFound(c, "pin not found")
		}
		return c.JSON(p)
	}
}

// PinEventsHandler accepts a pin mutation notification. Map sessions
// showing the changed area reload.
func PinEventsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var change ports.PinsChange
		if err := c.BodyParser(&change); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !change.Valid() {
			return errBadRequest(c, fmt.Sprintf("unknown action %q", change.Action))
		}

		if deps.Events != nil {
			if err := deps.Events.NotifyChanged(c.UserContext(), change); err != nil {
				LoggerFromCtx(c.UserContext()).Error("pins change notify failed", "action", change.Action, "error", err)
				return errInternal(c, "could not record pins change")
			}
		} else if deps.Hub != nil {
			deps.Hub.ReloadAll(c.UserContext())
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "action": change.Action})
	}
}

// mergeRequest is the stateless counterpart of a map session frame.
// App markers come first, then surviving local drafts, each in request
// order; the first marker for an id wins.
type mergeRequest struct {
	App          []domain.Marker           `json:"app"`
	Local        []domain.LocalDraftMarker `json:"local"`
	Points       []domain.ServerPoint      `json:"points"`
	Drafts       []domain.ServerDraft      `json:"drafts"`
	Search       *domain.SearchResult      `json:"search"`
	MenuOpen     bool                      `json:"menuOpen"`
	MenuTargetID string                    `json:"menuTargetId"`
	HiddenID     string                    `json:"hiddenId"`
}

type mergeResponse struct {
	Markers  []domain.Marker  `json:"markers"`
	Meta     domain.MergeMeta `json:"meta"`
	HiddenID string           `json:"hiddenId,omitempty"`
}

// MergeHandler merges client-held markers and pins into the rendered list
// without opening a session.
func MergeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req mergeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		points, drafts := viewport.Effective(req.Search, req.Points, req.Drafts)

		store := viewport.NewDraftStore(deps.pipeline().DraftProximityMeters)
		local := make([]domain.Marker, 0, len(req.App)+len(req.Local))
		local = append(local, req.App...)
		for _, l := range req.Local {
			if !store.Suppressed(l, points, drafts) {
				local = append(local, viewport.LocalToMarker(l))
			}
		}

		markers := viewport.Merge(local, points, drafts)
		return c.JSON(mergeResponse{
			Markers:  markers,
			Meta:     viewport.BuildMeta(markers),
			HiddenID: viewport.EffectiveHiddenID(req.MenuOpen, req.MenuTargetID, req.HiddenID),
		})
	}
}
