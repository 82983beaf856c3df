package guetzli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/guetzli/shield"
)

// Resource is the HTTP surface over a JobCoordinator. It translates
// transport errors to status codes and holds no business logic beyond
// MIME/size validation, delegated straight through to the coordinator.
// Router wiring follows the teacher's chi-based cmd/chrc composition.
type Resource struct {
	coordinator *JobCoordinator
}

// NewResource builds a Resource over the given coordinator.
func NewResource(coordinator *JobCoordinator) *Resource {
	return &Resource{coordinator: coordinator}
}

// Routes mounts the /image resource tree onto r.
func (res *Resource) Routes(r chi.Router) {
	r.Route("/image", func(r chi.Router) {
		r.Post("/", res.handleSubmit)
		r.Get("/", res.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/meta", res.handleMeta)
			r.Get("/source", res.handleSource)
			r.Get("/target", res.handleTarget)
		})
	})
}

func (res *Resource) handleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())

	mimeType := r.Header.Get("Content-Type")
	name := r.Header.Get("X-Guetzli-Img-Name")

	id, err := res.coordinator.Submit(r.Context(), r.Body, r.ContentLength, mimeType, name)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooLarge):
			writeError(w, http.StatusBadRequest, "upload larger than 8MB")
		case errors.Is(err, ErrUnsupportedMedia):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported content type %q", mimeType))
		default:
			logger.Error("submit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "storage failure")
		}
		return
	}

	w.Header().Set("Location", "/image/"+id+"/source")
	w.WriteHeader(http.StatusCreated)
}

func (res *Resource) handleList(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())

	ids, err := res.coordinator.ListContentIDs()
	if err != nil {
		logger.Error("list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{IDs: ids})
}

func (res *Resource) handleMeta(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := shield.GetLogger(r.Context())

	meta, err := res.coordinator.GetMeta(id)
	if err != nil {
		writeStoreError(w, logger, id, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataToJSON(meta))
}

func (res *Resource) handleSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := shield.GetLogger(r.Context())

	meta, err := res.coordinator.GetMeta(id)
	if err != nil {
		writeStoreError(w, logger, id, err)
		return
	}

	stream, err := res.coordinator.GetSource(id, meta.SourceType)
	if err != nil {
		writeStoreError(w, logger, id, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", meta.SourceType.MIME())
	if wantsDownload(r) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.SourceName))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		logger.Error("streaming source failed", "content_id", id, "error", err)
	}
}

func (res *Resource) handleTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := shield.GetLogger(r.Context())

	meta, err := res.coordinator.GetMeta(id)
	if err != nil {
		writeStoreError(w, logger, id, err)
		return
	}

	stream, err := res.coordinator.GetTarget(id)
	if err != nil {
		writeStoreError(w, logger, id, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	if wantsDownload(r) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.SourceName))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		logger.Error("streaming target failed", "content_id", id, "error", err)
	}
}

func writeStoreError(w http.ResponseWriter, logger *slog.Logger, id string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("no such entry %q", id))
	default:
		logger.Error("storage failure", "content_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("storage failure for %q", id))
	}
}

func wantsDownload(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("download"))
	switch v {
	case "yes", "true", "y", "t":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

type listResponse struct {
	IDs []string `json:"ids"`
}

type sourceJSON struct {
	Name         string `json:"name,omitempty"`
	MIME         string `json:"mime,omitempty"`
	QualityLevel int    `json:"qualitylevel,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

type targetJSON struct {
	QualityLevel int   `json:"qualitylevel,omitempty"`
	Size         int64 `json:"size,omitempty"`
}

type metadataJSON struct {
	ContentID string      `json:"contentId"`
	Status    Status      `json:"status"`
	Source    sourceJSON  `json:"source"`
	Target    *targetJSON `json:"target,omitempty"`
}

func metadataToJSON(m *Metadata) metadataJSON {
	out := metadataJSON{
		ContentID: m.ContentID,
		Status:    m.Status,
		Source: sourceJSON{
			Name:         m.SourceName,
			MIME:         m.SourceType.MIME(),
			QualityLevel: m.SourceQuality,
			Size:         m.SourceSize,
		},
	}
	if m.Status == StatusTransformed && m.TargetQuality != nil && m.TargetSize != nil {
		out.Target = &targetJSON{
			QualityLevel: *m.TargetQuality,
			Size:         *m.TargetSize,
		}
	}
	return out
}
