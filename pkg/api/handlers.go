package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding-funnel/pkg/funnel"
	"onboarding-funnel/pkg/models"
	"onboarding-funnel/pkg/services"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	onboarding *services.OnboardingService
	auth       *services.AuthService
	visitors   *VisitorTokens
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(onboarding *services.OnboardingService, auth *services.AuthService, visitors *VisitorTokens, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		onboarding: onboarding,
		auth:       auth,
		visitors:   visitors,
		logger:     logger,
	}
}

// HealthCheck handler for monitoring
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}

func errorMessage(msg string) any {
	if msg == "" {
		return nil
	}
	return msg
}

// fail maps service errors to responses. Anything unexpected is logged and
// reported as a generic 500.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
	case errors.Is(err, services.ErrPageExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Page expired, reload to continue"})
	case errors.Is(err, services.ErrUnknownField), errors.Is(err, services.ErrUnknownInteraction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoPreviousStep):
		c.JSON(http.StatusConflict, gin.H{"error": "Already on the first step"})
	default:
		_ = c.Error(err)
		h.logger.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func redirectTo(c *gin.Context, status int, step funnel.Step) {
	c.Header("Location", step.Path)
	c.JSON(status, gin.H{
		"redirect": step.Path,
		"step":     step.Number,
	})
}

// ViewStep gates a step page load
func (h *Handlers) ViewStep(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown step"})
		return
	}
	step, ok := funnel.Lookup(n)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown step"})
		return
	}

	res, err := h.onboarding.View(c.Request.Context(), CurrentVisitor(c), step)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Redirect != nil {
		redirectTo(c, http.StatusSeeOther, *res.Redirect)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"page_id":        res.Page.ID,
		"step":           step.Number,
		"step_name":      step.Name,
		"business_email": res.BusinessEmail,
	})
}

// StepInput marks the first interaction with a step form
func (h *Handlers) StepInput(c *gin.Context) {
	if err := h.onboarding.Input(c.Request.Context(), CurrentVisitor(c), c.Param("page")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StepField validates a single field
func (h *Handlers) StepField(c *gin.Context) {
	var ev models.FieldEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	msg, err := h.onboarding.Field(c.Request.Context(), CurrentVisitor(c), c.Param("page"), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"field": ev.Field,
		"error": errorMessage(msg),
	})
}

// SubmitStep validates and persists a step
func (h *Handlers) SubmitStep(c *gin.Context) {
	var values models.FormValues
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	res, err := h.onboarding.Submit(c.Request.Context(), CurrentVisitor(c), c.Param("page"), values)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch {
	case !res.Errors.OK():
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": res.Errors})
	case res.Redirect != nil:
		redirectTo(c, http.StatusConflict, *res.Redirect)
	case res.Completed:
		c.JSON(http.StatusOK, gin.H{
			"completed":         true,
			"navigate_after_ms": millis(res.NavigateAfter),
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"completed":         false,
			"next":              res.Next.Path,
			"navigate_after_ms": millis(res.NavigateAfter),
		})
	}
}

// StepBack returns the previous step
func (h *Handlers) StepBack(c *gin.Context) {
	res, err := h.onboarding.Back(c.Request.Context(), CurrentVisitor(c), c.Param("page"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"redirect":          res.Step.Path,
		"navigate_after_ms": millis(res.NavigateAfter),
	})
}

// StepLifecycle reports the page being left
func (h *Handlers) StepLifecycle(c *gin.Context) {
	var ev models.LifecycleEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lifecycle event"})
		return
	}

	tracked, err := h.onboarding.Lifecycle(c.Request.Context(), CurrentVisitor(c), c.Param("page"), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracked": tracked})
}

// ViewLogin opens the login page
func (h *Handlers) ViewLogin(c *gin.Context) {
	page := h.auth.ViewLogin(c.Request.Context(), CurrentVisitor(c))
	c.JSON(http.StatusOK, gin.H{"page_id": page.ID})
}

func (h *Handlers) LoginInput(c *gin.Context) {
	if err := h.auth.Input(c.Request.Context(), CurrentVisitor(c), c.Param("page")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) LoginField(c *gin.Context) {
	var ev models.FieldEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	msg, err := h.auth.Field(c.Request.Context(), CurrentVisitor(c), c.Param("page"), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"field": ev.Field,
		"error": errorMessage(msg),
	})
}

// Login validates credentials and starts a session
func (h *Handlers) Login(c *gin.Context) {
	var values models.FormValues
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	res, err := h.auth.Login(c.Request.Context(), CurrentVisitor(c), c.Param("page"), values)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Errors.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": res.Errors})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":           res.Session,
		"redirect":          res.Redirect,
		"navigate_after_ms": millis(res.NavigateAfter),
	})
}

// LoginInteraction reports clicks and toggles on the login page
func (h *Handlers) LoginInteraction(c *gin.Context) {
	var ev models.InteractionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interaction"})
		return
	}

	if err := h.auth.Interaction(c.Request.Context(), CurrentVisitor(c), c.Param("page"), ev); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) LoginLifecycle(c *gin.Context) {
	var ev models.LifecycleEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lifecycle event"})
		return
	}

	tracked, err := h.auth.Lifecycle(c.Request.Context(), CurrentVisitor(c), c.Param("page"), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracked": tracked})
}

// Session returns the logged-in user for the site header
func (h *Handlers) Session(c *gin.Context) {
	user, err := h.auth.Session(c.Request.Context(), CurrentVisitor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logged_in": user != nil,
		"user":      user,
	})
}

// Logout ends the session and rotates the visitor's anonymous id
func (h *Handlers) Logout(c *gin.Context) {
	visitor := CurrentVisitor(c)
	anonymousID, err := h.auth.Logout(c.Request.Context(), visitor)
	if err != nil {
		h.fail(c, err)
		return
	}

	visitor.AnonymousID = anonymousID
	if err := h.visitors.Issue(c, visitor); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "logged_out",
		"redirect": "/",
	})
}
