package handlers

import (
	"net/http"
	"strconv"

	"topdivers/backend/internal/models"

	"github.com/go-chi/chi/v5"
)

type listTripsResponse struct {
	Items []models.Trip `json:"items"`
}

type listCoursesResponse struct {
	Items []models.Course `json:"items"`
}

func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, err := h.repo.ListTrips(ctx)
	if err != nil {
		logger.Error("list_trips", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, listTripsResponse{Items: items})
}

func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	tripID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || tripID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid trip id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	trip, err := h.repo.TripByID(ctx, tripID)
	if err != nil {
		h.handleInvoicingError(logger, w, "get_trip", err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, err := h.repo.ListCourses(ctx)
	if err != nil {
		logger.Error("list_courses", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, listCoursesResponse{Items: items})
}

func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	courseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || courseID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	course, err := h.repo.CourseByID(ctx, courseID)
	if err != nil {
		h.handleInvoicingError(logger, w, "get_course", err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}
