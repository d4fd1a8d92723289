package models

import "strings"

// Visitor identifies one browser. ID namespaces persisted keys;
// AnonymousID is the analytics anonymous id and rotates on logout.
type Visitor struct {
	ID          string
	AnonymousID string
}

// Session is the logged-in user record stored under tazapay_user
type Session struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	LoggedIn       bool   `json:"logged_in"`
	LoginTimestamp string `json:"login_timestamp"`
	RememberMe     bool   `json:"remember_me"`
}

// NavUser is what the site header needs to render the user menu
type NavUser struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Initials    string `json:"initials"`
	DisplayName string `json:"display_name"`
}

// NewNavUser derives initials and display name the way the header shows them:
// "Raj Kumar" gives "RK" and "Raj"; without a name the email prefix is used.
func NewNavUser(email, name string) NavUser {
	u := NavUser{Email: email, Name: name}
	words := strings.Fields(name)
	if len(words) > 0 {
		var b strings.Builder
		for _, w := range words {
			b.WriteString(strings.ToUpper(string([]rune(w)[0])))
		}
		initials := []rune(b.String())
		if len(initials) > 2 {
			initials = initials[:2]
		}
		u.Initials = string(initials)
		u.DisplayName = words[0]
		return u
	}
	if email != "" {
		u.Initials = strings.ToUpper(string([]rune(email)[0]))
	}
	u.DisplayName, _, _ = strings.Cut(email, "@")
	return u
}
