package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-funnel/pkg/analytics"
	"onboarding-funnel/pkg/models"
	"onboarding-funnel/pkg/store"
)

func loginValues(email, password string) models.FormValues {
	return models.FormValues{
		Values:  map[string]string{"email": email, "password": password},
		Checked: map[string]bool{"rememberMe": true},
	}
}

func TestLoginRejectsInvalidForm(t *testing.T) {
	f := newFixture(t)
	page := f.auth.ViewLogin(context.Background(), f.visitor)

	res, err := f.auth.Login(context.Background(), f.visitor, page.ID, loginValues("bad", "123"))
	require.NoError(t, err)
	assert.Equal(t, "Please enter a valid email address", res.Errors["email"])
	assert.Equal(t, "Password must be at least 6 characters", res.Errors["password"])
	assert.Nil(t, res.Session)

	ok, err := store.Has(context.Background(), f.store, f.visitor.ID, store.KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)

	f.flush(t)
	failed := f.recorder.Find(analytics.EventLoginValidationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Properties["attempt_number"])
}

func TestLoginStoresSessionAndIdentifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)

	res, err := f.auth.Login(ctx, f.visitor, page.ID, loginValues("Jane.Doe@Example.com", "secret1"))
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "jane.doe@example.com", res.Session.Email)
	assert.Equal(t, "jane.doe", res.Session.Name)
	assert.True(t, res.Session.RememberMe)
	assert.Equal(t, "/", res.Redirect)
	assert.Equal(t, LoginRedirectDelay, res.NavigateAfter)

	var session models.Session
	require.NoError(t, store.GetJSON(ctx, f.store, f.visitor.ID, store.KeyUser, &session))
	assert.True(t, session.LoggedIn)

	user, err := f.auth.Session(ctx, f.visitor)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jane.doe@example.com", user.Email)
	assert.Equal(t, "J", user.Initials)

	f.flush(t)
	ids := f.recorder.Identifies()
	require.Len(t, ids, 1)
	assert.Equal(t, "jane.doe@example.com", ids[0].UserID)
	assert.Equal(t, true, ids[0].Traits["first_login"])
	assert.Equal(t, "example.com", ids[0].Traits["email_domain"])
	assert.Len(t, f.recorder.Find(analytics.EventLoggedIn), 1)
	assert.Len(t, f.recorder.Find(analytics.EventIndexLoggedIn), 1)
}

func TestLogoutKeepsPreviousLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)
	_, err := f.auth.Login(ctx, f.visitor, page.ID, loginValues("jane@example.com", "secret1"))
	require.NoError(t, err)

	anon, err := f.auth.Logout(ctx, f.visitor)
	require.NoError(t, err)
	assert.NotEmpty(t, anon)
	assert.NotEqual(t, f.visitor.AnonymousID, anon)

	user, err := f.auth.Session(ctx, f.visitor)
	require.NoError(t, err)
	assert.Nil(t, user)

	ok, err := store.Has(ctx, f.store, f.visitor.ID, store.KeyPreviousLogin)
	require.NoError(t, err)
	assert.True(t, ok)

	// logging in again is no longer a first login
	f.visitor.AnonymousID = anon
	page = f.auth.ViewLogin(ctx, f.visitor)
	_, err = f.auth.Login(ctx, f.visitor, page.ID, loginValues("jane@example.com", "secret1"))
	require.NoError(t, err)

	f.flush(t)
	assert.Equal(t, []string{"anon-1"}, f.recorder.Resets())
	logout := f.recorder.Find(analytics.EventLoggedOut)
	require.Len(t, logout, 1)
	assert.Equal(t, "jane@example.com", logout[0].Properties["email"])

	ids := f.recorder.Identifies()
	require.Len(t, ids, 2)
	assert.Equal(t, false, ids[1].Traits["first_login"])
	assert.Equal(t, anon, ids[1].AnonymousID)
}

func TestLoginAttemptsCountPerPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)

	_, err := f.auth.Login(ctx, f.visitor, page.ID, loginValues("", ""))
	require.NoError(t, err)
	_, err = f.auth.Login(ctx, f.visitor, page.ID, loginValues("jane@example.com", "secret1"))
	require.NoError(t, err)

	f.flush(t)
	success := f.recorder.Find(analytics.EventLoggedIn)
	require.Len(t, success, 1)
	assert.Equal(t, 2, success[0].Properties["attempt_number"])
}

func TestLoginLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)
	leaving := models.LifecycleEvent{Kind: models.LifecycleBeforeUnload, FormValues: models.FormValues{
		Values: map[string]string{"email": "jane@example.com"},
	}}

	fired, err := f.auth.Lifecycle(ctx, f.visitor, page.ID, leaving)
	require.NoError(t, err)
	assert.False(t, fired)

	require.NoError(t, f.auth.Input(ctx, f.visitor, page.ID))
	fired, err = f.auth.Lifecycle(ctx, f.visitor, page.ID, leaving)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = f.auth.Lifecycle(ctx, f.visitor, page.ID, models.LifecycleEvent{Kind: models.LifecyclePopState})
	require.NoError(t, err)
	assert.False(t, fired)

	f.flush(t)
	abandoned := f.recorder.Find(analytics.EventLoginAbandoned)
	require.Len(t, abandoned, 1)
	assert.Equal(t, true, abandoned[0].Properties["email_entered"])
	assert.Equal(t, false, abandoned[0].Properties["password_entered"])
}

func TestLoginFieldEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)

	msg, err := f.auth.Field(ctx, f.visitor, page.ID, models.FieldEvent{Field: "email", Value: "jane@example.com"})
	require.NoError(t, err)
	assert.Empty(t, msg)

	msg, err = f.auth.Field(ctx, f.visitor, page.ID, models.FieldEvent{Field: "password", Value: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "Password must be at least 6 characters", msg)

	_, err = f.auth.Field(ctx, f.visitor, page.ID, models.FieldEvent{Field: "businessName"})
	assert.ErrorIs(t, err, ErrUnknownField)

	f.flush(t)
	pw := f.recorder.Find(analytics.EventLoginPasswordComplete)
	require.Len(t, pw, 1)
	assert.Equal(t, 3, pw[0].Properties["password_length"])
	assert.NotContains(t, pw[0].Properties, "password")
}

func TestLoginInteractions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.auth.ViewLogin(ctx, f.visitor)

	for _, ev := range []models.InteractionEvent{
		{Kind: models.InteractionPasswordVisibility, Visible: true},
		{Kind: models.InteractionRememberMe, Checked: false},
		{Kind: models.InteractionSocialLogin, Provider: "Google"},
		{Kind: models.InteractionSocialLogin, Provider: "github"},
		{Kind: models.InteractionForgotPassword},
		{Kind: models.InteractionForgotPassword, Email: "jane@example.com"},
		{Kind: models.InteractionSignupLink},
	} {
		require.NoError(t, f.auth.Interaction(ctx, f.visitor, page.ID, ev))
	}

	err := f.auth.Interaction(ctx, f.visitor, page.ID, models.InteractionEvent{Kind: "wave"})
	assert.ErrorIs(t, err, ErrUnknownInteraction)

	f.flush(t)
	toggled := f.recorder.Find(analytics.EventPasswordToggled)
	require.Len(t, toggled, 1)
	assert.Equal(t, true, toggled[0].Properties["visible"])

	remember := f.recorder.Find(analytics.EventRememberMeToggled)
	require.Len(t, remember, 1)
	assert.Equal(t, false, remember[0].Properties["checked"])

	social := f.recorder.Find(analytics.EventSocialLoginClicked)
	require.Len(t, social, 2)
	assert.Equal(t, "google", social[0].Properties["provider"])
	assert.Equal(t, "other", social[1].Properties["provider"])
	assert.Equal(t, "Login", social[0].Properties["page"])

	forgot := f.recorder.Find(analytics.EventForgotPassword)
	require.Len(t, forgot, 2)
	assert.Equal(t, false, forgot[0].Properties["email_entered"])
	assert.Nil(t, forgot[0].Properties["email"])
	assert.Equal(t, true, forgot[1].Properties["email_entered"])
	assert.Equal(t, "jane@example.com", forgot[1].Properties["email"])

	signup := f.recorder.Find(analytics.EventSignupLinkClicked)
	require.Len(t, signup, 1)
	assert.Equal(t, "login_page", signup[0].Properties["source"])
}

func TestInteractionRequiresLoginPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.auth.Interaction(ctx, f.visitor, "missing", models.InteractionEvent{Kind: models.InteractionSignupLink})
	assert.ErrorIs(t, err, ErrPageNotFound)
}
