package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var errUnsupportedEncoding = errors.New("unsupported content encoding")

// GzipRequestMiddleware transparently inflates request bodies sent with
// Content-Encoding: gzip. Bodies in any other non-identity encoding are
// rejected with 415, and broken gzip streams with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			gzipped, err := requestIsGzipped(req.Header.Get(echo.HeaderContentEncoding))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
			}
			if !gzipped {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = inflatedBody{Reader: gr, gz: gr, raw: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// requestIsGzipped reports whether the Content-Encoding list is exactly gzip
// (optionally alongside identity).
func requestIsGzipped(header string) (bool, error) {
	gzipped := false
	for _, enc := range strings.Split(header, ",") {
		switch strings.ToLower(strings.TrimSpace(enc)) {
		case "", "identity":
		case "gzip", "x-gzip":
			if gzipped {
				return false, errUnsupportedEncoding
			}
			gzipped = true
		default:
			return false, errUnsupportedEncoding
		}
	}
	return gzipped, nil
}

type inflatedBody struct {
	io.Reader
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (b inflatedBody) Close() error {
	gzErr := b.gz.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return gzErr
}
