package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/media"
	"ai-workout-planner/internal/metrics"
	"ai-workout-planner/internal/orchestrator"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/workout"
)

const planErrorMessage = "Could not generate plan. Try again."

// PlanService is the orchestrator as seen by the HTTP layer.
type PlanService interface {
	GenerateForUser(ctx context.Context, userID string, overrides intake.Fields) (workout.Plan, error)
	GenerateForGuest(ctx context.Context, guestID string, overrides intake.Fields) (workout.Plan, error)
	SaveIntake(ctx context.Context, caller orchestrator.Caller, step string, raw intake.Fields) (workout.PlanSpec, error)
	Status(ctx context.Context, caller orchestrator.Caller) (workout.State, error)
	Output(ctx context.Context, caller orchestrator.Caller) (orchestrator.Output, error)
	Latest(ctx context.Context, userID string) (*records.Record, error)
}

type GifSearcher interface {
	Search(ctx context.Context, query string) media.GifResult
}

type Handlers struct {
	plans   PlanService
	gifs    GifSearcher
	log     *logger.Logger
	dataDir string
}

func NewHandlers(plans PlanService, gifs GifSearcher, log *logger.Logger, dataDir string) *Handlers {
	if log == nil {
		log = logger.Nop()
	}
	return &Handlers{plans: plans, gifs: gifs, log: log, dataDir: dataDir}
}

func callerOf(c *gin.Context) orchestrator.Caller {
	return orchestrator.Caller{UserID: c.GetString(ctxUserID), GuestID: c.GetString(ctxGuestID)}
}

// wantsJSON is true for fetch/XHR callers. Everyone else is a form post
// that expects a redirect.
func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}

func respondError(c *gin.Context, err error, fallback string) {
	c.JSON(apierr.StatusOf(err), gin.H{"ok": false, "error": apierr.CodeOf(err, fallback)})
}

// PostPlan generates a plan from the stored intake plus body overrides.
func (h *Handlers) PostPlan(c *gin.Context) {
	overrides, err := readBody(c)
	if err != nil {
		h.planFailed(c, apierr.New(http.StatusBadRequest, apierr.CodeInvalidBody, err))
		return
	}
	h.plan(c, overrides)
}

// GetPlan is the link-friendly variant; query parameters are overrides.
func (h *Handlers) GetPlan(c *gin.Context) {
	h.plan(c, fieldsFromValues(c.Request.URL.Query()))
}

func (h *Handlers) plan(c *gin.Context, overrides intake.Fields) {
	caller := callerOf(c)
	var (
		plan workout.Plan
		err  error
	)
	if caller.Authenticated() {
		plan, err = h.plans.GenerateForUser(c.Request.Context(), caller.UserID, overrides)
	} else {
		plan, err = h.plans.GenerateForGuest(c.Request.Context(), caller.GuestID, overrides)
	}
	if err != nil {
		h.planFailed(c, err)
		return
	}
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "plan": plan})
		return
	}
	c.Redirect(http.StatusSeeOther, "/wizard/output")
}

func (h *Handlers) planFailed(c *gin.Context, err error) {
	loginRequired := errors.Is(err, apierr.ErrLoginRequired)
	if !loginRequired {
		h.log.Error("plan request failed", "error", err)
	}
	if wantsJSON(c) {
		msg := planErrorMessage
		if loginRequired {
			msg = apierr.CodeLoginRequired
		}
		c.JSON(apierr.StatusOf(err), gin.H{"ok": false, "error": msg})
		return
	}
	if loginRequired {
		c.Redirect(http.StatusSeeOther, "/wizard/output?msg="+apierr.CodeLoginRequired)
		return
	}
	c.Redirect(http.StatusSeeOther, "/wizard/fitnessgoal?msg=plan_error")
}

// Gif always answers 200; a miss is {ok:false}.
func (h *Handlers) Gif(c *gin.Context) {
	if h.gifs == nil {
		c.JSON(http.StatusOK, media.GifResult{})
		return
	}
	c.JSON(http.StatusOK, h.gifs.Search(c.Request.Context(), c.Query("q")))
}

func (h *Handlers) SaveStep(c *gin.Context) {
	fields, err := readBody(c)
	if err != nil {
		respondError(c, apierr.New(http.StatusBadRequest, apierr.CodeInvalidBody, err), apierr.CodeInvalidBody)
		return
	}
	spec, err := h.plans.SaveIntake(c.Request.Context(), callerOf(c), c.Param("step"), fields)
	if err != nil {
		respondError(c, err, apierr.CodeInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "spec": spec})
}

func (h *Handlers) Status(c *gin.Context) {
	state, err := h.plans.Status(c.Request.Context(), callerOf(c))
	if err != nil {
		respondError(c, err, apierr.CodeStatusFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": state})
}

func (h *Handlers) Output(c *gin.Context) {
	out, err := h.plans.Output(c.Request.Context(), callerOf(c))
	if err != nil {
		respondError(c, err, apierr.CodeInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "plan": out.Plan, "state": out.State, "guestRemaining": out.GuestRemaining})
}

type recordView struct {
	ID        int64         `json:"id"`
	State     workout.State `json:"state"`
	Fields    intake.Fields `json:"fields"`
	Plan      *workout.Plan `json:"plan,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (h *Handlers) LatestRecord(c *gin.Context) {
	rec, err := h.plans.Latest(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		respondError(c, err, apierr.CodeInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "record": recordView{
		ID:        rec.ID,
		State:     rec.State,
		Fields:    rec.Fields,
		Plan:      rec.Plan,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "health": metrics.GetSysHealth(h.dataDir)})
}

// readBody accepts JSON objects and url-encoded or multipart forms. An
// empty body is no overrides.
func readBody(c *gin.Context) (intake.Fields, error) {
	if c.ContentType() == binding.MIMEJSON {
		fields := intake.Fields{}
		if err := c.ShouldBindJSON(&fields); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return fields, nil
	}
	if err := c.Request.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	return fieldsFromValues(c.Request.PostForm), nil
}

// fieldsFromValues keeps repeated keys (checkbox groups) as lists and
// accepts the "equipment[]" spelling.
func fieldsFromValues(values url.Values) intake.Fields {
	fields := intake.Fields{}
	for key, vals := range values {
		key = strings.TrimSuffix(key, "[]")
		switch len(vals) {
		case 0:
		case 1:
			fields[key] = vals[0]
		default:
			fields[key] = append([]string(nil), vals...)
		}
	}
	return fields
}
