// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"cityinfo/internal/adapters/observability"
	"cityinfo/internal/app"
	"cityinfo/internal/domain"
)

const (
	defaultPageSize = 10
	maxBodyBytes    = 1 << 20
)

type Handlers struct {
	Q           *app.CityQueryService
	Store       domain.Store
	Notifier    domain.Notifier
	MaxPageSize int
}

type problem struct {
	Type   string           `json:"type"`
	Title  string           `json:"title"`
	Status int              `json:"status"`
	Detail string           `json:"detail,omitempty"`
	Errors []domain.Problem `json:"errors,omitempty"`
}

// cityWithPointsOfInterest always renders the children, even when empty.
type cityWithPointsOfInterest struct {
	domain.City
	NumberOfPointsOfInterest int                      `json:"numberOfPointsOfInterest"`
	PointsOfInterest         []domain.PointOfInterest `json:"pointsOfInterest"`
}

type pointOfInterestInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) MountHandlers(h *Handlers) {
	if h.MaxPageSize <= 0 {
		h.MaxPageSize = 20
	}
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/api/cities", func(r chi.Router) {
		r.Get("/", h.listCities)
		r.Route("/{cityId}", func(r chi.Router) {
			r.Get("/", h.getCity)
			r.Route("/pointsofinterest", func(r chi.Router) {
				r.Get("/", h.listPointsOfInterest)
				r.Post("/", h.createPointOfInterest)
				r.Get("/{poiId}", h.getPointOfInterest)
				r.Put("/{poiId}", h.updatePointOfInterest)
				r.Patch("/{poiId}", h.patchPointOfInterest)
				r.Delete("/{poiId}", h.deletePointOfInterest)
			})
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, errs ...domain.Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Errors: errs}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := domain.IsValidation(err); ok {
		title := "Invalid patch document"
		if ve.Kind == domain.Semantic {
			title = "Validation failed"
		}
		writeProblem(w, http.StatusBadRequest, title, "", ve.Problems...)
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, domain.ErrInvalidPage), errors.Is(err, domain.ErrInvalidPageSize):
		writeProblem(w, http.StatusBadRequest, "Invalid page", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", "")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeProblem(w, http.StatusServiceUnavailable, "Request cancelled", "")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "A problem happened while handling your request.")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeJSON serves v with a weak ETag and honors If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// queryInt returns def when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (h *Handlers) listCities(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := queryInt(r, "pageNumber", 1)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid pageNumber", "pageNumber must be an integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid pageSize", "pageSize must be an integer")
		return
	}
	if pageSize > h.MaxPageSize {
		pageSize = h.MaxPageSize
	}

	page, err := h.Q.ListCities(r.Context(), domain.CitiesQuery{
		Name:        r.URL.Query().Get("name"),
		SearchQuery: r.URL.Query().Get("searchQuery"),
		PageNumber:  pageNumber,
		PageSize:    pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, _ := json.Marshal(page.Metadata)
	w.Header().Set("X-Pagination", string(meta))
	writeJSON(w, r, page.Items)
}

func (h *Handlers) getCity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "cityId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "cityId must be a number")
		return
	}
	include, _ := strconv.ParseBool(r.URL.Query().Get("includePointsOfInterest"))

	c, err := h.Q.GetCity(r.Context(), id, include)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !include {
		c.PointsOfInterest = nil
		writeJSON(w, r, c)
		return
	}
	children := c.PointsOfInterest
	if children == nil {
		children = []domain.PointOfInterest{}
	}
	writeJSON(w, r, cityWithPointsOfInterest{City: c, NumberOfPointsOfInterest: len(children), PointsOfInterest: children})
}

func (h *Handlers) listPointsOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, err := pathID(r, "cityId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "cityId must be a number")
		return
	}
	out, err := h.Q.ListPointsOfInterest(r.Context(), cityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) getPointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, poiID, ok := childIDs(w, r)
	if !ok {
		return
	}
	p, err := h.Q.GetPointOfInterest(r.Context(), cityID, poiID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Info().Int64("city_id", cityID).Int64("poi_id", poiID).Msg("point of interest not found")
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, p)
}

func (h *Handlers) createPointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, err := pathID(r, "cityId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "cityId must be a number")
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	var created *domain.PointOfInterest
	err = h.unitOfWork(r.Context(), "create", func(svc *app.PointOfInterestService) (err error) {
		created, err = svc.Create(r.Context(), cityID, domain.PointOfInterestFields{Name: in.Name, Description: in.Description})
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/cities/%d/pointsofinterest/%d", cityID, created.ID))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		log.Error().Err(err).Msg("failed to write created point of interest")
	}
}

func (h *Handlers) updatePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, poiID, ok := childIDs(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	err := h.unitOfWork(r.Context(), "replace", func(svc *app.PointOfInterestService) error {
		return svc.Replace(r.Context(), cityID, poiID, domain.PointOfInterestFields{Name: in.Name, Description: in.Description})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) patchPointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, poiID, ok := childIDs(w, r)
	if !ok {
		return
	}
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	ops, err := app.DecodePatch(doc)
	if err != nil {
		observability.ObserveMutation("patch", err)
		writeError(w, r, err)
		return
	}
	err = h.unitOfWork(r.Context(), "patch", func(svc *app.PointOfInterestService) error {
		return svc.Patch(r.Context(), cityID, poiID, ops)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deletePointOfInterest(w http.ResponseWriter, r *http.Request) {
	cityID, poiID, ok := childIDs(w, r)
	if !ok {
		return
	}
	err := h.unitOfWork(r.Context(), "delete", func(svc *app.PointOfInterestService) error {
		return svc.Delete(r.Context(), cityID, poiID)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unitOfWork runs fn against a fresh session and commits it when fn succeeds.
func (h *Handlers) unitOfWork(ctx context.Context, op string, fn func(*app.PointOfInterestService) error) (err error) {
	defer func() { observability.ObserveMutation(op, err) }()

	repo, err := h.Store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	svc := app.NewPointOfInterestService(repo, h.Notifier)
	if err := fn(svc); err != nil {
		return err
	}
	saved, err := svc.SaveChanges(ctx)
	if err != nil {
		return err
	}
	if !saved {
		return errors.New("changes were not saved")
	}
	return nil
}

func childIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	cityID, err := pathID(r, "cityId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "cityId must be a number")
		return 0, 0, false
	}
	poiID, err := pathID(r, "poiId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "poiId must be a number")
		return 0, 0, false
	}
	return cityID, poiID, true
}

func decodeInput(w http.ResponseWriter, r *http.Request) (pointOfInterestInput, bool) {
	var in pointOfInterestInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "body must be a JSON object with name and description")
		return in, false
	}
	return in, true
}
