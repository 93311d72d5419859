// Package api exposes the batch fetch operation over HTTP. The surface is
// deliberately small: identification and authorization of the caller happen
// upstream; this layer translates requests into manager calls and domain
// errors into status codes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"catalog/internal/catalog"
	"catalog/internal/catalog/entity"
	"catalog/internal/catalog/manager"
	"catalog/internal/catalog/resolver"
	"catalog/pkg/domain"
	dErrors "catalog/pkg/domain-errors"
)

// Handler serves the catalog fetch API.
type Handler struct {
	logger   *slog.Logger
	managers map[catalog.Resource]*manager.Manager[entity.Document]
}

// New creates a handler over the given per-resource managers.
func New(logger *slog.Logger, managers map[catalog.Resource]*manager.Manager[entity.Document]) *Handler {
	return &Handler{logger: logger, managers: managers}
}

// Register mounts the API routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/{version}/{resource}/{ids}/info", h.handleInfo)
}

// infoResponse is the wire shape of a batch fetch.
type infoResponse struct {
	Results []entity.Document  `json:"results"`
	Missing []resolver.Missing `json:"missing,omitempty"`
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := domain.ParseAPIVersion(chi.URLParam(r, "version")); err != nil {
		writeError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "api version", err))
		return
	}

	resource, err := catalog.ParseResource(strings.ToUpper(chi.URLParam(r, "resource")))
	if err != nil {
		writeError(w, err)
		return
	}
	mgr, ok := h.managers[resource]
	if !ok {
		writeError(w, dErrors.Newf(dErrors.CodeInvalidInput, "resource %s is not served here", resource))
		return
	}

	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "missing user parameter"))
		return
	}

	req := manager.GetRequest{
		OrganizationID: r.URL.Query().Get("organization"),
		StudyFqn:       r.URL.Query().Get("study"),
		IDs:            strings.Split(chi.URLParam(r, "ids"), ","),
		User:           user,
		Token:          r.Header.Get("Authorization"),
		IgnoreMissing:  r.URL.Query().Get("ignoreMissing") == "true",
	}
	if v := r.URL.Query().Get("studyUid"); v != "" {
		uid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "studyUid must be an integer"))
			return
		}
		req.StudyUID = uid
	}
	if v := r.URL.Query().Get("version"); v != "" {
		ver, err := strconv.Atoi(v)
		if err != nil || ver <= 0 {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "version must be a positive integer"))
			return
		}
		req.Query.Version = ver
	}
	req.Query.AllVersions = r.URL.Query().Get("allVersions") == "true"

	res, err := mgr.Get(ctx, req)
	if err != nil {
		h.logger.InfoContext(ctx, "fetch rejected",
			"resource", resource, "user", user, "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infoResponse{Results: res.Found(), Missing: res.Missing()})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
	case dErrors.CodeUnauthorized:
		status = http.StatusForbidden
	case dErrors.CodeStorage, dErrors.CodeInternal:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
