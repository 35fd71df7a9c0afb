package http

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagMiddleware tags successful pin reads with a weak validator and answers
// 304 when the client's If-None-Match still matches. A map panned back and
// forth over the same area re-requests identical bounds often.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		if !strings.HasPrefix(c.Path(), "/v1/pins/") {
			return nil
		}
		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		tag := weakETag(body)
		c.Set(fiber.HeaderETag, tag)
		if etagMatches(c.Get(fiber.HeaderIfNoneMatch), tag) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func weakETag(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return `W/"` + strconv.FormatUint(h.Sum64(), 16) + `"`
}

// etagMatches applies the weak comparison of If-None-Match, which may list
// several tags or be "*".
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
