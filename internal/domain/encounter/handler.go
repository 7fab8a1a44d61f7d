package encounter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic/internal/domain/catalog"
	"github.com/clinicflow/clinic/internal/domain/charting"
	"github.com/clinicflow/clinic/internal/domain/clinicalnote"
	"github.com/clinicflow/clinic/internal/domain/inventory"
	"github.com/clinicflow/clinic/internal/domain/prescription"
	"github.com/clinicflow/clinic/internal/domain/scheduling"
	"github.com/clinicflow/clinic/internal/domain/treatment"
	"github.com/clinicflow/clinic/internal/platform/auth"
)

type Handler struct {
	wf     *Workflow
	store  DraftStore
	logger zerolog.Logger
}

func NewHandler(wf *Workflow, store DraftStore, logger zerolog.Logger) *Handler {
	return &Handler{wf: wf, store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/encounters", auth.RequireRole(auth.RoleAdmin, auth.RoleDentist))
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Discard)
	g.POST("/:id/appointment", h.SelectAppointment)
	g.PUT("/:id/plan", h.SetPlan)
	g.PUT("/:id/teeth/:tooth", h.SetTooth)
	g.POST("/:id/prescriptions", h.AddPrescription)
	g.DELETE("/:id/prescriptions/:index", h.RemovePrescription)
	g.PUT("/:id/materials", h.SetMaterials)
	g.PUT("/:id/note", h.SetNote)
	g.POST("/:id/advance", h.Advance)
	g.POST("/:id/retreat", h.Retreat)
	g.POST("/:id/commit", h.Commit)
}

type draftResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	State     State         `json:"state"`
	Draft     *Draft        `json:"draft"`
	Result    *CommitResult `json:"result,omitempty"`
}

// httpError maps workflow errors onto HTTP statuses.
func httpError(err error) *echo.HTTPError {
	var se *StageError
	switch {
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
			"stage": se.Stage, "error": se.Err.Error(),
		})
	case errors.Is(err, ErrCompletionNotConfirmed),
		errors.Is(err, ErrAppointmentClosed),
		errors.Is(err, ErrPlanCompleted),
		errors.Is(err, treatment.ErrPlanImmutable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDraftNotFound), errors.Is(err, scheduling.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoPatient),
		errors.Is(err, ErrWrongStep),
		errors.Is(err, ErrLastStep),
		errors.Is(err, ErrUnknownCondition),
		errors.Is(err, ErrPrescriptionIndex),
		errors.Is(err, charting.ErrInvalidTooth),
		errors.Is(err, treatment.ErrInvalidLine),
		errors.Is(err, inventory.ErrInvalidUsage),
		errors.Is(err, prescription.ErrInvalidPrescription),
		errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// load returns the caller's draft named in the path. Drafts of other
// practitioners are reported as missing.
func (h *Handler) load(c echo.Context) (*Draft, error) {
	pid, err := auth.PractitionerIDFromContext(c.Request().Context())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.store.Load(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	if d.PractitionerID != pid {
		return nil, echo.NewHTTPError(http.StatusNotFound, ErrDraftNotFound.Error())
	}
	return d, nil
}

func (h *Handler) respond(c echo.Context, status int, d *Draft, res *CommitResult) error {
	if err := h.store.Save(c.Request().Context(), d); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(status, draftResponse{
		SessionID: d.SessionID,
		State:     h.wf.State(c.Request().Context(), d),
		Draft:     d,
		Result:    res,
	})
}

// mutate loads the draft, applies fn and stores the result. A failing fn
// leaves the stored draft unchanged.
func (h *Handler) mutate(c echo.Context, fn func(d *Draft) error) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return httpError(err)
	}
	return h.respond(c, http.StatusOK, d, nil)
}

func (h *Handler) Create(c echo.Context) error {
	pid, err := auth.PractitionerIDFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return h.respond(c, http.StatusCreated, NewDraft(pid), nil)
}

func (h *Handler) Get(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, draftResponse{
		SessionID: d.SessionID,
		State:     h.wf.State(c.Request().Context(), d),
		Draft:     d,
	})
}

func (h *Handler) Discard(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), d.SessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SelectAppointment(c echo.Context) error {
	var body struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.SelectAppointment(c.Request().Context(), d, body.AppointmentID)
	})
}

func (h *Handler) SetPlan(c echo.Context) error {
	var in PlanInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.SetPlan(c.Request().Context(), d, in)
	})
}

func (h *Handler) SetTooth(c echo.Context) error {
	tooth, err := strconv.Atoi(c.Param("tooth"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tooth number")
	}
	var rec charting.ToothRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec.ToothNumber = tooth
	return h.mutate(c, func(d *Draft) error {
		return h.wf.SetTooth(c.Request().Context(), d, rec)
	})
}

func (h *Handler) AddPrescription(c echo.Context) error {
	var rx prescription.Prescription
	if err := c.Bind(&rx); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.AddPrescription(c.Request().Context(), d, rx)
	})
}

func (h *Handler) RemovePrescription(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.RemovePrescription(d, index)
	})
}

func (h *Handler) SetMaterials(c echo.Context) error {
	var body struct {
		Materials []inventory.MaterialUsage `json:"materials"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.SetMaterials(c.Request().Context(), d, body.Materials)
	})
}

func (h *Handler) SetNote(c echo.Context) error {
	var n clinicalnote.Note
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.SetNote(d, n)
	})
}

func (h *Handler) Advance(c echo.Context) error {
	var in AdvanceInput
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return h.mutate(c, func(d *Draft) error {
		return h.wf.Advance(c.Request().Context(), d, in)
	})
}

func (h *Handler) Retreat(c echo.Context) error {
	return h.mutate(c, func(d *Draft) error {
		h.wf.Retreat(d)
		return nil
	})
}

func (h *Handler) Commit(c echo.Context) error {
	d, err := h.load(c)
	if err != nil {
		return err
	}
	res, err := h.wf.Commit(c.Request().Context(), d)
	if err != nil {
		return httpError(err)
	}
	if err := h.store.Save(c.Request().Context(), d); err != nil {
		h.logger.Warn().Err(err).Str("session_id", d.SessionID.String()).Msg("committed draft could not be reset in store")
	}
	return c.JSON(http.StatusOK, draftResponse{
		SessionID: d.SessionID,
		State:     h.wf.State(c.Request().Context(), d),
		Draft:     d,
		Result:    res,
	})
}
