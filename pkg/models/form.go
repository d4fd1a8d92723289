package models

// Step1Record is the persisted Business Information step
type Step1Record struct {
	BusinessName  string `json:"businessName"`
	BusinessEmail string `json:"businessEmail"`
	Country       string `json:"country"`
}

// Step2Record is the persisted Contact Details step
type Step2Record struct {
	ContactName string `json:"contactName"`
	PhoneNumber string `json:"phoneNumber"`
	JobTitle    string `json:"jobTitle"`
}

// Step3Record is the persisted Verification step
type Step3Record struct {
	BusinessType       string `json:"businessType"`
	RegistrationNumber string `json:"registrationNumber"`
	MonthlyVolume      string `json:"monthlyVolume"`
	TermsAccepted      bool   `json:"termsAccepted"`
}

// FormValues carries raw input values posted from a page, keyed by input id.
// Checkboxes are reported separately since their state is not a string.
type FormValues struct {
	Values  map[string]string `json:"values"`
	Checked map[string]bool   `json:"checked"`
}

// Text returns the raw value of an input, "" when absent.
func (f FormValues) Text(name string) string {
	if f.Values == nil {
		return ""
	}
	return f.Values[name]
}

// IsChecked returns the checkbox state of an input.
func (f FormValues) IsChecked(name string) bool {
	if f.Checked == nil {
		return false
	}
	return f.Checked[name]
}

// FieldEvent is sent on blur (text inputs) or change (selects, checkboxes)
type FieldEvent struct {
	Field   string `json:"field" binding:"required"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

// Lifecycle kinds reported by the browser when a page is left
const (
	LifecycleBeforeUnload = "beforeunload"
	LifecycleHidden       = "hidden"
	LifecyclePopState     = "popstate"
)

// LifecycleEvent reports a page exit along with whatever the form held
type LifecycleEvent struct {
	Kind string `json:"kind" binding:"required,oneof=beforeunload hidden popstate"`
	FormValues
}

// Login page interactions that do not touch the form state
const (
	InteractionPasswordVisibility = "password_visibility"
	InteractionRememberMe         = "remember_me"
	InteractionSocialLogin        = "social_login"
	InteractionForgotPassword     = "forgot_password"
	InteractionSignupLink         = "signup_link"
)

// InteractionEvent is a click or toggle on the login page. Only the fields
// relevant to Kind are read.
type InteractionEvent struct {
	Kind     string `json:"kind" binding:"required,oneof=password_visibility remember_me social_login forgot_password signup_link"`
	Visible  bool   `json:"visible"`
	Checked  bool   `json:"checked"`
	Provider string `json:"provider"`
	Email    string `json:"email"`
}
