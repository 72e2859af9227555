package upload

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/leonletto/figlink/internal/logging"
)

// Header names carried by an upload request.
const (
	HeaderNodeID = "X-Node-Id"
	HeaderFormat = "X-Format"
	HeaderScale  = "X-Scale"
)

// DefaultMaxBytes bounds a single upload when no limit is configured.
const DefaultMaxBytes = 20 << 20

// Receipt is the response body of a successful upload.
type Receipt struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
}

// Handler serves POST /upload and GET /images/{id}.
type Handler struct {
	store     *Store
	maxBytes  int64
	publicURL string
	log       *zap.Logger
}

// NewHandler creates upload endpoints over store. Returned URLs are rooted at
// publicURL, or at the request host when publicURL is empty.
func NewHandler(store *Store, maxBytes int64, publicURL string, logger *zap.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Handler{
		store:     store,
		maxBytes:  maxBytes,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       logging.Component(logger, "upload"),
	}
}

// Routes mounts the upload endpoints on r. Both answer cross-origin requests:
// the design tool's plugin uploads from a sandbox with an opaque origin.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", HeaderNodeID, HeaderFormat, HeaderScale},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
		r.Post("/upload", h.handleUpload)
		r.Options("/upload", noContent)
		r.Get("/images/{id}", h.handleImage)
		r.Options("/images/{id}", noContent)
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(h.maxBytes, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	mimeType, err := imageType(r.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	scale, _ := strconv.ParseFloat(r.Header.Get(HeaderScale), 64)

	img := h.store.Put(Image{
		Data:     data,
		MimeType: mimeType,
		NodeID:   r.Header.Get(HeaderNodeID),
		Format:   r.Header.Get(HeaderFormat),
		Scale:    scale,
	})
	h.log.Info("image stored",
		zap.String("id", img.ID),
		zap.String("node", img.NodeID),
		zap.String("mime", img.MimeType),
		zap.Int("size", len(data)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(Receipt{
		ID:       img.ID,
		URL:      h.baseURL(r) + "/images/" + img.ID,
		Size:     len(data),
		MimeType: mimeType,
	})
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(img.Data)
}

// imageType resolves the media type of an upload, sniffing the body when no
// Content-Type was sent. Only image/* types are stored.
func imageType(header string, data []byte) (string, error) {
	if header == "" {
		header = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", errors.New("invalid content type " + strconv.Quote(header))
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", errors.New("unsupported content type " + strconv.Quote(mediaType) + ": only images are accepted")
	}
	return mediaType, nil
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
