package upload

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, maxBytes int64, ttl time.Duration) (*Store, *httptest.Server) {
	t.Helper()
	store := NewStore(ttl, time.Hour)
	r := chi.NewRouter()
	NewHandler(store, maxBytes, "", nil).Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return store, ts
}

func TestUploadRoundTrip(t *testing.T) {
	store, ts := newServer(t, 0, time.Hour)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	receipt, err := NewClient(ts.URL).Upload(context.Background(), png, Meta{
		MimeType: "image/png",
		NodeID:   "1:2",
		Format:   "PNG",
		Scale:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, len(png), receipt.Size)
	assert.Equal(t, "image/png", receipt.MimeType)
	assert.Equal(t, ts.URL+"/images/"+receipt.ID, receipt.URL)
	assert.Equal(t, 1, store.Len())

	img, ok := store.Get(receipt.ID)
	require.True(t, ok)
	assert.Equal(t, "1:2", img.NodeID)
	assert.Equal(t, 2.0, img.Scale)

	resp, err := http.Get(receipt.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, body)
}

func TestUploadTooLarge(t *testing.T) {
	store, ts := newServer(t, 8, time.Hour)

	resp, err := http.Post(ts.URL+"/upload", "image/png", bytes.NewReader(make([]byte, 9)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, store.Len())

	_, err = NewClient(ts.URL).Upload(context.Background(), make([]byte, 9), Meta{MimeType: "image/png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "413")
}

func TestUploadEmpty(t *testing.T) {
	_, ts := newServer(t, 0, time.Hour)
	resp, err := http.Post(ts.URL+"/upload", "image/png", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRejectsNonImage(t *testing.T) {
	store, ts := newServer(t, 0, time.Hour)

	resp, err := http.Post(ts.URL+"/upload", "text/html; charset=utf-8", strings.NewReader("<script>alert(1)</script>"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", strings.NewReader("<html><body>hi</body></html>"))
	require.NoError(t, err)
	req.Header.Del("Content-Type")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, 0, store.Len())
}

func TestImageServedWithoutSniffing(t *testing.T) {
	_, ts := newServer(t, 0, time.Hour)
	receipt, err := NewClient(ts.URL).Upload(context.Background(), []byte("<svg/>"), Meta{MimeType: "image/svg+xml; charset=utf-8"})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", receipt.MimeType)

	resp, err := http.Get(receipt.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "sandbox")
}

func TestUploadPreflightFromPlugin(t *testing.T) {
	_, ts := newServer(t, 0, time.Hour)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "null")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-node-id,x-format,x-scale")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPost, resp.Header.Get("Access-Control-Allow-Methods"))
	allowed := strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers"))
	for _, h := range []string{"content-type", "x-node-id", "x-format", "x-scale"} {
		assert.Contains(t, allowed, h)
	}

	post, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", strings.NewReader("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	post.Header.Set("Origin", "null")
	post.Header.Set("Content-Type", "image/png")
	post.Header.Set(HeaderNodeID, "1:2")
	resp, err = http.DefaultClient.Do(post)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestImageNotFound(t *testing.T) {
	_, ts := newServer(t, 0, time.Hour)
	resp, err := http.Get(ts.URL + "/images/01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStoreExpires(t *testing.T) {
	store := NewStore(20*time.Millisecond, time.Hour)
	img := store.Put(Image{Data: []byte("x"), MimeType: "image/svg+xml"})

	_, ok := store.Get(img.ID)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = store.Get(img.ID)
	assert.False(t, ok)
}

func TestHandlerPublicURL(t *testing.T) {
	store := NewStore(time.Hour, time.Hour)
	r := chi.NewRouter()
	NewHandler(store, 0, "https://relay.example.com/", nil).Routes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("<svg/>"))
	req.Header.Set("Content-Type", "image/svg+xml")
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"url":"https://relay.example.com/images/`)
}
