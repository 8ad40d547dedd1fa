package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/STTM-NSU/investracker/internal/holdings"
	"github.com/STTM-NSU/investracker/internal/logger"
	"github.com/STTM-NSU/investracker/internal/model"
	"github.com/STTM-NSU/investracker/internal/refresh"
	"github.com/STTM-NSU/investracker/internal/tracker"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	_requestIDHeader      = "X-Request-ID"
	_internalErrorMessage = "internal error"
)

type HoldingsService interface {
	List(ctx context.Context) ([]model.Holding, error)
	Get(ctx context.Context, id string) (model.Holding, error)
	Create(ctx context.Context, h model.Holding) (model.Holding, error)
	Update(ctx context.Context, h model.Holding) (model.Holding, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) (model.Summary, error)
	Refresh(ctx context.Context) ([]model.Holding, error)
	RefreshGold(ctx context.Context) ([]model.Holding, error)
	LastUpdated() time.Time
}

type errorResponse struct {
	Message string `json:"message"`
}

type refreshResponse struct {
	Holdings    []model.Holding `json:"holdings"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type handler struct {
	svc    HoldingsService
	logger logger.Logger
}

func NewHandler(svc HoldingsService, logger logger.Logger) http.Handler {
	h := &handler{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /holdings", h.list)
	mux.HandleFunc("POST /holdings", h.create)
	mux.HandleFunc("GET /holdings/{id}", h.get)
	mux.HandleFunc("PUT /holdings/{id}", h.update)
	mux.HandleFunc("DELETE /holdings/{id}", h.delete)
	mux.HandleFunc("POST /holdings/refresh", h.refresh)
	mux.HandleFunc("POST /holdings/refresh/gold", h.refreshGold)
	mux.HandleFunc("GET /summary", h.summary)

	return h.withRequestID(mux)
}

func (h *handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(_requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(_requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debugf("%s %s %s done in %s", id, r.Method, r.URL.Path, time.Since(start))
	})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	hs, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if hs == nil {
		hs = []model.Holding{}
	}
	h.writeJSON(w, http.StatusOK, hs)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	holding, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, holding)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var in model.Holding
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed holding"})
		return
	}

	created, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	var in model.Holding
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "malformed holding"})
		return
	}
	in.ID = r.PathValue("id")

	updated, err := h.svc.Update(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.runRefresh(w, r, h.svc.Refresh)
}

func (h *handler) refreshGold(w http.ResponseWriter, r *http.Request) {
	h.runRefresh(w, r, h.svc.RefreshGold)
}

func (h *handler) runRefresh(w http.ResponseWriter, r *http.Request, refresh func(context.Context) ([]model.Holding, error)) {
	hs, err := refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if hs == nil {
		hs = []model.Holding{}
	}
	h.writeJSON(w, http.StatusOK, refreshResponse{Holdings: hs, LastUpdated: h.svc.LastUpdated()})
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, holdings.ErrHoldingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidHolding):
		status = http.StatusBadRequest
	case errors.Is(err, tracker.ErrRefreshInProgress):
		status = http.StatusConflict
	case errors.Is(err, refresh.ErrRefreshFailed):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s: request failed", err)
		msg = _internalErrorMessage
	}
	h.writeJSON(w, status, errorResponse{Message: msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Errorf("%s: can't encode response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Warnf("%s: can't write response", err)
	}
}
