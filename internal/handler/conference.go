package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/middleware"
	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/repository"
)

// ConferenceHandler exposes the minimal conference surface the auth
// core protects: creation (role-gated) and retrieval (ownership-gated).
// The rest of conference management lives outside this service.
type ConferenceHandler struct {
	Confs *repository.ConferenceRepo
}

func NewConferenceHandler(confs *repository.ConferenceRepo) *ConferenceHandler {
	return &ConferenceHandler{Confs: confs}
}

// CreateConference handles POST /v1/conferences for organizers.
func (h *ConferenceHandler) CreateConference(c echo.Context) error {
	uid, ok := middleware.CallerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, model.NewAPIError(model.CodeAuthRequired, "authentication required"))
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, model.NewAPIError(model.CodeValidation, "invalid request body"))
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		return c.JSON(http.StatusUnprocessableEntity, model.NewAPIError(model.CodeValidation, "title is required"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Confs.Create(ctx, title, uid)
	if err != nil {
		c.Logger().Errorf("create conference failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":    true,
		"conference": model.Conference{ID: id, Title: title, CreatedBy: uid},
	})
}

// GetConference handles GET /v1/conferences/:id. Ownership is enforced
// by middleware before this runs.
func (h *ConferenceHandler) GetConference(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, model.NewAPIError(model.CodeValidation, "invalid id"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cf, err := h.Confs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, model.NewAPIError(model.CodeNotFound, "conference not found"))
		}
		c.Logger().Errorf("get conference failed: %v", err)
		return c.JSON(http.StatusInternalServerError, model.NewAPIError(model.CodeInternal, "internal server error"))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "conference": cf})
}
