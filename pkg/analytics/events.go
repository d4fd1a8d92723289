package analytics

// Event names tracked across the funnel and login pages
const (
	EventStepViewed        = "Onboarding Step Viewed"
	EventFormStarted       = "Form Started"
	EventFieldCompleted    = "Form Field Completed"
	EventTermsChanged      = "Terms Checkbox Changed"
	EventValidationFailed  = "Form Validation Failed"
	EventStepCompleted     = "Onboarding Step Completed"
	EventOnboardingDone    = "Onboarding Completed"
	EventSuccessModalShown = "Success Modal Shown"
	EventBackClicked       = "Back Button Clicked"
	EventFormAbandoned     = "Form Abandoned"
	EventPageHidden        = "Page Hidden - Form Not Completed"
	EventBrowserBack       = "Browser Back Button Clicked"

	EventLoginViewed           = "Login Page Viewed"
	EventLoginEmailCompleted   = "Login Email Field Completed"
	EventLoginPasswordComplete = "Login Password Field Completed"
	EventLoginFormStarted      = "Login Form Started"
	EventLoginValidationFailed = "Login Validation Failed"
	EventLoginAttempt          = "Login Attempt"
	EventLoggedIn              = "User Logged In"
	EventLoginAbandoned        = "Login Form Abandoned"
	EventLoginPageHidden       = "Login Page Hidden - Not Completed"
	EventPasswordToggled       = "Password Visibility Toggled"
	EventRememberMeToggled     = "Remember Me Toggled"
	EventSocialLoginClicked    = "Social Login Clicked"
	EventForgotPassword        = "Forgot Password Clicked"
	EventSignupLinkClicked     = "Signup Link Clicked"
	EventLoggedOut             = "User Logged Out"
	EventIndexLoggedIn         = "Index Page Viewed - Logged In"
	EventIndexAnonymous        = "Index Page Viewed - Not Logged In"
)
