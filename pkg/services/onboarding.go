package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"onboarding-funnel/pkg/analytics"
	"onboarding-funnel/pkg/funnel"
	"onboarding-funnel/pkg/metrics"
	"onboarding-funnel/pkg/models"
	"onboarding-funnel/pkg/store"
	"onboarding-funnel/pkg/validation"
)

var (
	ErrUnknownField   = errors.New("unknown field")
	ErrNoPreviousStep = errors.New("no previous step")
)

// OnboardingService runs the three-step onboarding funnel: gating page
// loads, validating and persisting each step and reporting every
// interaction to analytics.
type OnboardingService struct {
	store   store.Store
	pages   *PageRegistry
	emitter *analytics.Emitter
	metrics *metrics.Funnel
	leads   LeadService
	logger  *zap.Logger
	now     func() time.Time
	locks   visitorLocks
}

func NewOnboardingService(
	st store.Store,
	pages *PageRegistry,
	emitter *analytics.Emitter,
	funnelMetrics *metrics.Funnel,
	leads LeadService,
	logger *zap.Logger,
) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingService{
		store:   st,
		pages:   pages,
		emitter: emitter,
		metrics: funnelMetrics,
		leads:   leads,
		logger:  logger,
		now:     time.Now,
	}
}

// ViewResult is either an open page or a redirect to an earlier step.
type ViewResult struct {
	Page          *funnel.Page
	Redirect      *funnel.Step
	BusinessEmail string
}

// SubmitResult describes the outcome of a step submission. Exactly one of
// Errors, Redirect, Next or Completed is set.
type SubmitResult struct {
	Errors        validation.Errors
	Redirect      *funnel.Step
	Next          *funnel.Step
	Completed     bool
	NavigateAfter time.Duration
}

// BackResult is where "go back" leads and how long to wait before going.
type BackResult struct {
	Step          funnel.Step
	NavigateAfter time.Duration
}

func (s *OnboardingService) timestamp() string {
	return isoTime(s.now())
}

// progress derives the funnel state and returns the step 1 record when
// present, since its business email correlates every event.
func (s *OnboardingService) progress(ctx context.Context, visitorID string) (funnel.State, *models.Step1Record, error) {
	var step1 models.Step1Record
	err := store.GetJSON(ctx, s.store, visitorID, funnel.Step1Key, &step1)
	hasStep1 := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return funnel.NotStarted, nil, fmt.Errorf("load step 1: %w", err)
	}

	hasStep2, err := store.Has(ctx, s.store, visitorID, funnel.Step2Key)
	if err != nil {
		return funnel.NotStarted, nil, fmt.Errorf("load step 2: %w", err)
	}

	st := funnel.Derive(hasStep1, hasStep2)
	if !hasStep1 {
		return st, nil, nil
	}
	return st, &step1, nil
}

func (s *OnboardingService) businessEmail(ctx context.Context, visitorID string) string {
	_, step1, err := s.progress(ctx, visitorID)
	if err != nil {
		s.logger.Warn("could not load business email", zap.Error(err))
		return ""
	}
	if step1 == nil {
		return ""
	}
	return step1.BusinessEmail
}

func (s *OnboardingService) page(visitorID, pageID string) (*funnel.Page, error) {
	page, err := s.pages.Get(visitorID, pageID)
	if err != nil {
		return nil, err
	}
	if page.IsLogin() {
		return nil, ErrPageNotFound
	}
	return page, nil
}

// View gates a step page load. When the visitor has not completed every
// earlier step the earliest missing step is returned and nothing else
// happens; otherwise a page controller is opened and the view tracked once.
func (s *OnboardingService) View(ctx context.Context, v models.Visitor, step funnel.Step) (ViewResult, error) {
	st, step1, err := s.progress(ctx, v.ID)
	if err != nil {
		return ViewResult{}, err
	}

	if redirect, ok := funnel.Gate(step, st); !ok {
		s.metrics.GateRedirected(step.Number, redirect.Number)
		return ViewResult{Redirect: &redirect}, nil
	}

	page := s.pages.Open(v.ID, step)
	email := ""
	if step1 != nil {
		email = step1.BusinessEmail
	}

	if page.MarkTracked() {
		props := analytics.Properties{
			"step":      step.Number,
			"step_name": step.Name,
			"timestamp": s.timestamp(),
		}
		switch step.Number {
		case 2:
			props["previous_step_completed"] = true
			props["business_email"] = email
		case 3:
			props["previous_steps_completed"] = true
			props["business_email"] = email
		}
		s.emitter.Track(v.AnonymousID, email, analytics.EventStepViewed, props)
		s.metrics.StepViewed(step.Number)
	}

	return ViewResult{Page: page, BusinessEmail: email}, nil
}

// Input records the first interaction with the form.
func (s *OnboardingService) Input(ctx context.Context, v models.Visitor, pageID string) error {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return err
	}
	if page.MarkStarted() {
		s.emitter.Track(v.AnonymousID, s.businessEmail(ctx, v.ID), analytics.EventFormStarted, analytics.Properties{
			"step":      page.Step.Number,
			"step_name": page.Step.Name,
			"timestamp": s.timestamp(),
		})
	}
	return nil
}

// Field validates a single field after blur or change and returns its
// error message ("" when valid).
func (s *OnboardingService) Field(ctx context.Context, v models.Visitor, pageID string, ev models.FieldEvent) (string, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return "", err
	}
	field, ok := page.Step.Form.Field(ev.Field)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, ev.Field)
	}

	values := models.FormValues{
		Values:  map[string]string{ev.Field: ev.Value},
		Checked: map[string]bool{ev.Field: ev.Checked},
	}
	msg := field.Validate(values)
	email := s.businessEmail(ctx, v.ID)

	switch field.Kind {
	case validation.Checkbox:
		s.emitter.Track(v.AnonymousID, email, analytics.EventTermsChanged, analytics.Properties{
			"step":     page.Step.Number,
			"accepted": ev.Checked,
		})
	case validation.Select:
		s.emitter.Track(v.AnonymousID, email, analytics.EventFieldCompleted, analytics.Properties{
			"step":            page.Step.Number,
			"field":           field.Key,
			field.SelectedKey: ev.Value,
			"has_error":       msg != "",
		})
	default:
		s.emitter.Track(v.AnonymousID, email, analytics.EventFieldCompleted, analytics.Properties{
			"step":          page.Step.Number,
			"field":         field.Key,
			"has_error":     msg != "",
			"error_message": nullable(msg),
		})
	}
	return msg, nil
}

// Submit validates the whole form. Invalid forms persist nothing. Valid
// forms replace the step record, report completion and the identity update
// once, and tell the page where to go next. Submitting the same page again
// returns the same outcome without persisting or reporting anything.
func (s *OnboardingService) Submit(ctx context.Context, v models.Visitor, pageID string, values models.FormValues) (SubmitResult, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return SubmitResult{}, err
	}
	step := page.Step

	if errs := step.Form.Validate(values); !errs.OK() {
		s.emitter.Track(v.AnonymousID, s.businessEmail(ctx, v.ID), analytics.EventValidationFailed, analytics.Properties{
			"step":      step.Number,
			"step_name": step.Name,
			"errors":    step.Form.Report(errs),
		})
		s.metrics.ValidationFailed(step.Number)
		return SubmitResult{Errors: errs}, nil
	}

	if !page.BeginSubmit() {
		s.logger.Debug("ignoring repeated submit", zap.String("page", page.ID), zap.Int("step", step.Number))
		return submitted(step), nil
	}

	unlock := s.locks.lock(v.ID)
	defer unlock()

	st, step1, err := s.progress(ctx, v.ID)
	if err != nil {
		page.AbortSubmit()
		return SubmitResult{}, err
	}
	if _, err := funnel.Transition(st, step); err != nil {
		page.AbortSubmit()
		redirect, _ := funnel.Gate(step, st)
		s.logger.Warn("rejected out of order submission", zap.Error(err))
		return SubmitResult{Redirect: &redirect}, nil
	}

	switch step.Number {
	case 1:
		err = s.completeStep1(ctx, v, step, values)
	case 2:
		err = s.completeStep2(ctx, v, step, values, *step1)
	default:
		err = s.completeStep3(ctx, v, step, values, *step1)
	}
	if err != nil {
		page.AbortSubmit()
		return SubmitResult{}, err
	}
	s.metrics.StepCompleted(step.Number)
	return submitted(step), nil
}

func submitted(step funnel.Step) SubmitResult {
	if next, ok := step.Next(); ok {
		return SubmitResult{Next: &next, NavigateAfter: step.NavigateAfter}
	}
	return SubmitResult{Completed: true, NavigateAfter: step.NavigateAfter}
}

// visitorLocks serialises the read-check-write of a visitor's funnel
// progress. Visitors hash onto a fixed set of mutexes.
type visitorLocks [64]sync.Mutex

func (l *visitorLocks) lock(visitorID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitorID))
	mu := &l[h.Sum32()%uint32(len(l))]
	mu.Lock()
	return mu.Unlock
}

func clean(form validation.Form, values models.FormValues, name string) string {
	field, _ := form.Field(name)
	return field.Clean(values)
}

func (s *OnboardingService) completeStep1(ctx context.Context, v models.Visitor, step funnel.Step, values models.FormValues) error {
	rec := models.Step1Record{
		BusinessName:  clean(step.Form, values, "businessName"),
		BusinessEmail: clean(step.Form, values, "businessEmail"),
		Country:       clean(step.Form, values, "country"),
	}
	if err := store.SetJSON(ctx, s.store, v.ID, step.Key, rec); err != nil {
		return fmt.Errorf("save step 1: %w", err)
	}

	s.emitter.Track(v.AnonymousID, rec.BusinessEmail, analytics.EventStepCompleted, analytics.Properties{
		"step":           step.Number,
		"step_name":      step.Name,
		"business_name":  rec.BusinessName,
		"business_email": rec.BusinessEmail,
		"country":        rec.Country,
		"timestamp":      s.timestamp(),
	})
	s.emitter.Identify(v.AnonymousID, rec.BusinessEmail, analytics.Traits{
		"email":           rec.BusinessEmail,
		"business_name":   rec.BusinessName,
		"country":         rec.Country,
		"onboarding_step": step.Number,
	})
	return nil
}

func (s *OnboardingService) completeStep2(ctx context.Context, v models.Visitor, step funnel.Step, values models.FormValues, step1 models.Step1Record) error {
	rec := models.Step2Record{
		ContactName: clean(step.Form, values, "contactName"),
		PhoneNumber: clean(step.Form, values, "phoneNumber"),
		JobTitle:    clean(step.Form, values, "jobTitle"),
	}
	if err := store.SetJSON(ctx, s.store, v.ID, step.Key, rec); err != nil {
		return fmt.Errorf("save step 2: %w", err)
	}

	s.emitter.Track(v.AnonymousID, step1.BusinessEmail, analytics.EventStepCompleted, analytics.Properties{
		"step":           step.Number,
		"step_name":      step.Name,
		"contact_name":   rec.ContactName,
		"phone_number":   rec.PhoneNumber,
		"job_title":      rec.JobTitle,
		"business_email": step1.BusinessEmail,
		"timestamp":      s.timestamp(),
	})
	s.emitter.Identify(v.AnonymousID, step1.BusinessEmail, analytics.Traits{
		"name":            rec.ContactName,
		"phone":           rec.PhoneNumber,
		"title":           rec.JobTitle,
		"onboarding_step": step.Number,
	})
	return nil
}

func (s *OnboardingService) completeStep3(ctx context.Context, v models.Visitor, step funnel.Step, values models.FormValues, step1 models.Step1Record) error {
	rec := models.Step3Record{
		BusinessType:       clean(step.Form, values, "businessType"),
		RegistrationNumber: clean(step.Form, values, "registrationNumber"),
		MonthlyVolume:      clean(step.Form, values, "monthlyVolume"),
		TermsAccepted:      values.IsChecked("termsAccepted"),
	}
	if err := store.SetJSON(ctx, s.store, v.ID, step.Key, rec); err != nil {
		return fmt.Errorf("save step 3: %w", err)
	}

	var step2 models.Step2Record
	if err := store.GetJSON(ctx, s.store, v.ID, funnel.Step2Key, &step2); err != nil {
		return fmt.Errorf("load step 2: %w", err)
	}

	email := step1.BusinessEmail
	completedAt := s.timestamp()
	s.emitter.Track(v.AnonymousID, email, analytics.EventStepCompleted, analytics.Properties{
		"step":                step.Number,
		"step_name":           step.Name,
		"business_type":       rec.BusinessType,
		"registration_number": rec.RegistrationNumber,
		"monthly_volume":      rec.MonthlyVolume,
		"terms_accepted":      rec.TermsAccepted,
		"business_email":      email,
		"timestamp":           completedAt,
	})
	s.emitter.Track(v.AnonymousID, email, analytics.EventOnboardingDone, analytics.Properties{
		"business_name":       step1.BusinessName,
		"business_email":      email,
		"country":             step1.Country,
		"contact_name":        step2.ContactName,
		"phone_number":        step2.PhoneNumber,
		"job_title":           step2.JobTitle,
		"business_type":       rec.BusinessType,
		"monthly_volume":      rec.MonthlyVolume,
		"registration_number": rec.RegistrationNumber,
		"completed_at":        completedAt,
		"total_steps":         len(funnel.Steps()),
	})
	s.emitter.Identify(v.AnonymousID, email, analytics.Traits{
		"business_type":           rec.BusinessType,
		"registration_number":     rec.RegistrationNumber,
		"monthly_volume":          rec.MonthlyVolume,
		"onboarding_completed":    true,
		"onboarding_completed_at": completedAt,
	})

	if err := s.store.Delete(ctx, v.ID, funnel.Step1Key, funnel.Step2Key, funnel.Step3Key); err != nil {
		return fmt.Errorf("clear onboarding records: %w", err)
	}
	s.emitter.Track(v.AnonymousID, email, analytics.EventSuccessModalShown, analytics.Properties{
		"onboarding_complete": true,
		"business_email":      email,
	})

	if s.leads != nil {
		s.leads.RecordCompletion(step1, step2, rec)
	}
	return nil
}

// Back reports the back button and returns the previous step.
func (s *OnboardingService) Back(ctx context.Context, v models.Visitor, pageID string) (BackResult, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return BackResult{}, err
	}
	prev, ok := page.Step.Previous()
	if !ok {
		return BackResult{}, ErrNoPreviousStep
	}

	s.emitter.Track(v.AnonymousID, s.businessEmail(ctx, v.ID), analytics.EventBackClicked, analytics.Properties{
		"step":      page.Step.Number,
		"step_name": page.Step.Name,
		"going_to":  prev.Label(),
		"timestamp": s.timestamp(),
	})
	return BackResult{Step: prev, NavigateAfter: funnel.BackDelay}, nil
}

// Lifecycle reports a page exit. Nothing fires unless the form was touched
// and this step's record has not been persisted yet, including records
// persisted by this page and since cleared by completion. Returns whether an
// event fired.
func (s *OnboardingService) Lifecycle(ctx context.Context, v models.Visitor, pageID string, ev models.LifecycleEvent) (bool, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return false, err
	}
	if !page.Touched() || page.Submitted() {
		return false, nil
	}
	step := page.Step
	persisted, err := store.Has(ctx, s.store, v.ID, step.Key)
	if err != nil {
		return false, err
	}
	if persisted {
		return false, nil
	}

	props := analytics.Properties{
		"step":      step.Number,
		"step_name": step.Name,
	}
	var event string
	switch ev.Kind {
	case models.LifecycleBeforeUnload:
		event = analytics.EventFormAbandoned
		filled := make(map[string]bool, len(step.Form.Fields))
		for _, f := range step.Form.Fields {
			props[f.ValueProperty()] = f.Value(ev.FormValues)
			filled[f.ValueProperty()] = f.Filled(ev.FormValues)
		}
		props["fields_filled"] = filled
	case models.LifecycleHidden:
		event = analytics.EventPageHidden
		for _, f := range step.Form.Fields {
			props[f.ValueProperty()] = f.Value(ev.FormValues)
		}
	case models.LifecyclePopState:
		event = analytics.EventBrowserBack
	default:
		return false, fmt.Errorf("unknown lifecycle event %q", ev.Kind)
	}
	props["timestamp"] = s.timestamp()

	s.emitter.Track(v.AnonymousID, s.businessEmail(ctx, v.ID), event, props)
	s.metrics.Abandoned(step.Number, ev.Kind)

	if ev.Kind == models.LifecycleBeforeUnload && step.Final() && s.leads != nil {
		s.scheduleReminder(ctx, v.ID)
	}
	return true, nil
}

func (s *OnboardingService) scheduleReminder(ctx context.Context, visitorID string) {
	var step1 models.Step1Record
	var step2 models.Step2Record
	if err := store.GetJSON(ctx, s.store, visitorID, funnel.Step1Key, &step1); err != nil {
		return
	}
	if err := store.GetJSON(ctx, s.store, visitorID, funnel.Step2Key, &step2); err != nil {
		return
	}
	s.leads.ScheduleReminder(visitorID, step1, step2)
}

func nullable(msg string) any {
	if msg == "" {
		return nil
	}
	return msg
}

// isoTime formats like JavaScript's Date.toISOString.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
