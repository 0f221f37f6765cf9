package api

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func postRaw(e *echo.Echo, body []byte, encoding string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if encoding != "" {
		req.Header.Set(echo.HeaderContentEncoding, encoding)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGzipRequestBody(t *testing.T) {
	store := newFileStore(t)
	e := newServer(store, nil)

	rec := postRaw(e, gzipBytes(t, milkBody), "gzip")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if store.Len() != 1 || store.List()[0].Title != "Buy milk" {
		t.Fatalf("unexpected stored tasks: %#v", store.List())
	}
}

func TestGzipRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		encoding string
		want     int
	}{
		{name: "broken gzip", body: []byte(milkBody), encoding: "gzip", want: http.StatusBadRequest},
		{name: "brotli", body: []byte(milkBody), encoding: "br", want: http.StatusUnsupportedMediaType},
		{name: "double gzip", body: []byte(milkBody), encoding: "gzip, gzip", want: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFileStore(t)
			e := newServer(store, nil)
			if rec := postRaw(e, tt.body, tt.encoding); rec.Code != tt.want {
				t.Fatalf("expected %d got %d", tt.want, rec.Code)
			}
			if store.Len() != 0 {
				t.Fatalf("rejected request must not be stored")
			}
		})
	}
}

func TestRequestIsGzipped(t *testing.T) {
	tests := []struct {
		header  string
		want    bool
		wantErr bool
	}{
		{header: "", want: false},
		{header: "identity", want: false},
		{header: "GZIP", want: true},
		{header: "x-gzip, identity", want: true},
		{header: "deflate", wantErr: true},
	}
	for _, tt := range tests {
		got, err := requestIsGzipped(tt.header)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", tt.header, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("%q: got %v want %v", tt.header, got, tt.want)
		}
	}
}
