package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"StormFlow/internal/service/cache"
)

// ResponseCache serves serialized GET responses from a BytesCache so
// repeated identical queries skip recomputation and, with the redis
// backend, are shared across replicas.
func ResponseCache(bc cache.BytesCache, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if bc == nil || c.Request().Method != http.MethodGet {
				return next(c)
			}
			key := "resp:" + c.Request().URL.RequestURI()
			if b, ok, err := bc.GetBytes(key); err == nil && ok {
				c.Response().Header().Set("X-Cache", "hit")
				return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, b)
			}

			w := &captureWriter{ResponseWriter: c.Response().Writer}
			c.Response().Writer = w
			if err := next(c); err != nil {
				return err
			}
			if c.Response().Status == http.StatusOK {
				_ = bc.SetBytes(key, w.buf.Bytes(), ttl)
			}
			return nil
		}
	}
}

type captureWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
