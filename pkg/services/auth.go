package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-funnel/pkg/analytics"
	"onboarding-funnel/pkg/funnel"
	"onboarding-funnel/pkg/metrics"
	"onboarding-funnel/pkg/models"
	"onboarding-funnel/pkg/store"
	"onboarding-funnel/pkg/validation"
)

// LoginRedirectDelay lets the identify and login events flush before the
// page moves to the home page.
const LoginRedirectDelay = 500 * time.Millisecond

// AuthService handles the login page, the header session read and logout.
type AuthService struct {
	store   store.Store
	pages   *PageRegistry
	emitter *analytics.Emitter
	metrics *metrics.Funnel
	logger  *zap.Logger
	now     func() time.Time
}

func NewAuthService(st store.Store, pages *PageRegistry, emitter *analytics.Emitter, funnelMetrics *metrics.Funnel, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		store:   st,
		pages:   pages,
		emitter: emitter,
		metrics: funnelMetrics,
		logger:  logger,
		now:     time.Now,
	}
}

// LoginResult is either the validation errors or the new session.
type LoginResult struct {
	Errors        validation.Errors
	Session       *models.Session
	Redirect      string
	NavigateAfter time.Duration
}

func emailDomain(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}

func (s *AuthService) page(visitorID, pageID string) (*funnel.Page, error) {
	page, err := s.pages.Get(visitorID, pageID)
	if err != nil {
		return nil, err
	}
	if !page.IsLogin() {
		return nil, ErrPageNotFound
	}
	return page, nil
}

// ViewLogin opens the login page controller and tracks the view once.
func (s *AuthService) ViewLogin(_ context.Context, v models.Visitor) *funnel.Page {
	page := s.pages.Open(v.ID, funnel.Step{})
	if page.MarkTracked() {
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginViewed, analytics.Properties{
			"page":      "Login",
			"timestamp": isoTime(s.now()),
		})
	}
	return page
}

func (s *AuthService) Input(_ context.Context, v models.Visitor, pageID string) error {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return err
	}
	if page.MarkStarted() {
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginFormStarted, analytics.Properties{
			"timestamp": isoTime(s.now()),
		})
	}
	return nil
}

// Field validates the email or password field on blur.
func (s *AuthService) Field(_ context.Context, v models.Visitor, pageID string, ev models.FieldEvent) (string, error) {
	if _, err := s.page(v.ID, pageID); err != nil {
		return "", err
	}

	switch ev.Field {
	case "email":
		msg := validation.Email(ev.Value)
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginEmailCompleted, analytics.Properties{
			"has_error":     msg != "",
			"error_message": nullable(msg),
			"email_domain":  emailDomain(ev.Value),
		})
		return msg, nil
	case "password":
		msg := validation.Password(ev.Value)
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginPasswordComplete, analytics.Properties{
			"has_error":       msg != "",
			"password_length": utf8.RuneCountInString(ev.Value),
		})
		return msg, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownField, ev.Field)
}

// Login validates the form and, when valid, stores the session and stitches
// the anonymous visitor to the email identity.
func (s *AuthService) Login(ctx context.Context, v models.Visitor, pageID string, values models.FormValues) (LoginResult, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return LoginResult{}, err
	}
	attempt := page.NextAttempt()

	if errs := validation.LoginForm.Validate(values); !errs.OK() {
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginValidationFailed, analytics.Properties{
			"errors":         validation.LoginForm.Report(errs),
			"attempt_number": attempt,
		})
		s.metrics.ValidationFailed(0)
		s.metrics.Login("invalid")
		return LoginResult{Errors: errs}, nil
	}

	email := strings.ToLower(strings.TrimSpace(values.Text("email")))
	rememberMe := values.IsChecked("rememberMe")
	domain := emailDomain(email)
	now := isoTime(s.now())

	s.emitter.Track(v.AnonymousID, "", analytics.EventLoginAttempt, analytics.Properties{
		"email":          email,
		"email_domain":   domain,
		"remember_me":    rememberMe,
		"attempt_number": attempt,
		"timestamp":      now,
	})

	returning, err := store.Has(ctx, s.store, v.ID, store.KeyPreviousLogin)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load previous login: %w", err)
	}

	name, _, _ := strings.Cut(email, "@")
	session := models.Session{
		Email:          email,
		Name:           name,
		LoggedIn:       true,
		LoginTimestamp: now,
		RememberMe:     rememberMe,
	}
	if err := store.SetJSON(ctx, s.store, v.ID, store.KeyUser, session); err != nil {
		return LoginResult{}, fmt.Errorf("save session: %w", err)
	}
	for key, value := range map[string]string{
		store.KeyUserEmail:     email,
		store.KeyUserName:      name,
		store.KeyPreviousLogin: "true",
	} {
		if err := s.store.Set(ctx, v.ID, key, value); err != nil {
			return LoginResult{}, fmt.Errorf("save %s: %w", key, err)
		}
	}

	s.emitter.Identify(v.AnonymousID, email, analytics.Traits{
		"email":        email,
		"name":         name,
		"logged_in":    true,
		"login_method": "email_password",
		"remember_me":  rememberMe,
		"first_login":  !returning,
		"last_login":   now,
		"email_domain": domain,
	})
	s.emitter.Track(v.AnonymousID, email, analytics.EventLoggedIn, analytics.Properties{
		"email":          email,
		"login_method":   "email_password",
		"remember_me":    rememberMe,
		"attempt_number": attempt,
		"success":        true,
		"timestamp":      now,
	})
	s.metrics.Login("success")

	return LoginResult{Session: &session, Redirect: "/", NavigateAfter: LoginRedirectDelay}, nil
}

var ErrUnknownInteraction = errors.New("unknown interaction")

// Interaction reports a click or toggle on the login page.
func (s *AuthService) Interaction(_ context.Context, v models.Visitor, pageID string, ev models.InteractionEvent) error {
	if _, err := s.page(v.ID, pageID); err != nil {
		return err
	}

	switch ev.Kind {
	case models.InteractionPasswordVisibility:
		s.emitter.Track(v.AnonymousID, "", analytics.EventPasswordToggled, analytics.Properties{
			"visible": ev.Visible,
		})
	case models.InteractionRememberMe:
		s.emitter.Track(v.AnonymousID, "", analytics.EventRememberMeToggled, analytics.Properties{
			"checked": ev.Checked,
		})
	case models.InteractionSocialLogin:
		provider := "other"
		if strings.EqualFold(ev.Provider, "google") {
			provider = "google"
		}
		s.emitter.Track(v.AnonymousID, "", analytics.EventSocialLoginClicked, analytics.Properties{
			"provider": provider,
			"page":     "Login",
		})
	case models.InteractionForgotPassword:
		s.emitter.Track(v.AnonymousID, "", analytics.EventForgotPassword, analytics.Properties{
			"email_entered": ev.Email != "",
			"email":         nullable(ev.Email),
		})
	case models.InteractionSignupLink:
		s.emitter.Track(v.AnonymousID, "", analytics.EventSignupLinkClicked, analytics.Properties{
			"source": "login_page",
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInteraction, ev.Kind)
	}
	return nil
}

// Lifecycle reports leaving the login page without logging in.
func (s *AuthService) Lifecycle(ctx context.Context, v models.Visitor, pageID string, ev models.LifecycleEvent) (bool, error) {
	page, err := s.page(v.ID, pageID)
	if err != nil {
		return false, err
	}
	if !page.Touched() {
		return false, nil
	}
	loggedIn, err := store.Has(ctx, s.store, v.ID, store.KeyUser)
	if err != nil {
		return false, err
	}
	if loggedIn {
		return false, nil
	}

	emailEntered := ev.Text("email") != ""
	switch ev.Kind {
	case models.LifecycleBeforeUnload:
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginAbandoned, analytics.Properties{
			"email_entered":    emailEntered,
			"password_entered": ev.Text("password") != "",
			"timestamp":        isoTime(s.now()),
		})
	case models.LifecycleHidden:
		s.emitter.Track(v.AnonymousID, "", analytics.EventLoginPageHidden, analytics.Properties{
			"email_entered": emailEntered,
			"timestamp":     isoTime(s.now()),
		})
	default:
		return false, nil
	}
	s.metrics.Abandoned(0, ev.Kind)
	return true, nil
}

// Session reads the logged-in user for the site header, or nil when nobody
// is logged in.
func (s *AuthService) Session(ctx context.Context, v models.Visitor) (*models.NavUser, error) {
	email, err := s.store.Get(ctx, v.ID, store.KeyUserEmail)
	if errors.Is(err, store.ErrNotFound) {
		s.emitter.Track(v.AnonymousID, "", analytics.EventIndexAnonymous, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	name, err := s.store.Get(ctx, v.ID, store.KeyUserName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load session name: %w", err)
	}

	s.emitter.Track(v.AnonymousID, email, analytics.EventIndexLoggedIn, analytics.Properties{
		"email": email,
		"name":  nullable(name),
	})
	user := models.NewNavUser(email, name)
	return &user, nil
}

// Logout clears the session keys, keeping tazapay_previous_login so the
// first_login trait stays accurate, resets the analytics identity and
// returns the visitor's new anonymous id.
func (s *AuthService) Logout(ctx context.Context, v models.Visitor) (string, error) {
	email, err := s.store.Get(ctx, v.ID, store.KeyUserEmail)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load session: %w", err)
	}

	if err := s.store.Delete(ctx, v.ID, store.KeyUserEmail, store.KeyUserName, store.KeyUser); err != nil {
		return "", fmt.Errorf("clear session: %w", err)
	}

	s.emitter.Track(v.AnonymousID, email, analytics.EventLoggedOut, analytics.Properties{"email": email})
	s.emitter.Reset(v.AnonymousID)
	s.logger.Info("user logged out", zap.String("email_domain", emailDomain(email)))
	return uuid.NewString(), nil
}
