package validation

import (
	"strings"

	"onboarding-funnel/pkg/models"
)

// Kind tells how a field is read and how its interactions are reported.
type Kind int

const (
	Text Kind = iota
	Select
	Checkbox
	Secret
)

// Field binds an input id to its validator and analytics property names.
type Field struct {
	Name string // input id, e.g. businessEmail
	Key  string // analytics property, e.g. business_email

	// ValueKey names the property carrying the field's value in abandonment
	// events when it differs from Key.
	ValueKey string

	// SelectedKey names the property reporting a select's chosen value.
	SelectedKey string

	Kind     Kind
	validate func(models.FormValues, string) string
}

func textField(name, key string, check func(string) string) Field {
	return Field{Name: name, Key: key, Kind: Text, validate: func(v models.FormValues, n string) string {
		return check(v.Text(n))
	}}
}

func selectField(name, key, selectedKey string, check func(string) string) Field {
	f := textField(name, key, check)
	f.Kind = Select
	f.SelectedKey = selectedKey
	return f
}

func checkboxField(name, key, valueKey string, check func(bool) string) Field {
	return Field{Name: name, Key: key, ValueKey: valueKey, Kind: Checkbox, validate: func(v models.FormValues, n string) string {
		return check(v.IsChecked(n))
	}}
}

// Validate runs the field's validator against the posted values.
func (f Field) Validate(values models.FormValues) string {
	return f.validate(values, f.Name)
}

// ValueProperty is the property name used when reporting the raw value.
func (f Field) ValueProperty() string {
	if f.ValueKey != "" {
		return f.ValueKey
	}
	return f.Key
}

// Value returns the field's value for reporting: a bool for checkboxes,
// the raw string otherwise.
func (f Field) Value(values models.FormValues) any {
	if f.Kind == Checkbox {
		return values.IsChecked(f.Name)
	}
	return values.Text(f.Name)
}

// Filled reports whether the user put anything in the field.
func (f Field) Filled(values models.FormValues) bool {
	if f.Kind == Checkbox {
		return values.IsChecked(f.Name)
	}
	return values.Text(f.Name) != ""
}

// Clean returns the value as it gets persisted: trimmed for free text,
// untouched for selects.
func (f Field) Clean(values models.FormValues) string {
	if f.Kind == Select {
		return values.Text(f.Name)
	}
	return strings.TrimSpace(values.Text(f.Name))
}

// Errors maps input ids to their error message. Only failing fields appear.
type Errors map[string]string

// OK reports whether every field passed.
func (e Errors) OK() bool {
	return len(e) == 0
}

// Form is an ordered set of fields validated together on submit.
type Form struct {
	Fields []Field
}

// Field looks a field up by input id.
func (f Form) Field(name string) (Field, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Validate runs every validator so all errors can be shown at once.
func (f Form) Validate(values models.FormValues) Errors {
	errs := Errors{}
	for _, field := range f.Fields {
		if msg := field.Validate(values); msg != "" {
			errs[field.Name] = msg
		}
	}
	return errs
}

// Report lists every field by analytics key, with nil for passing fields.
func (f Form) Report(errs Errors) map[string]any {
	report := make(map[string]any, len(f.Fields))
	for _, field := range f.Fields {
		if msg, ok := errs[field.Name]; ok {
			report[field.Key] = msg
		} else {
			report[field.Key] = nil
		}
	}
	return report
}

var (
	Step1Form = Form{Fields: []Field{
		textField("businessName", "business_name", BusinessName),
		textField("businessEmail", "business_email", Email),
		selectField("country", "country", "selected_country", Country),
	}}

	Step2Form = Form{Fields: []Field{
		textField("contactName", "contact_name", ContactName),
		textField("phoneNumber", "phone_number", PhoneNumber),
		textField("jobTitle", "job_title", JobTitle),
	}}

	Step3Form = Form{Fields: []Field{
		selectField("businessType", "business_type", "selected_type", BusinessType),
		textField("registrationNumber", "registration_number", RegistrationNumber),
		selectField("monthlyVolume", "monthly_volume", "selected_volume", MonthlyVolume),
		checkboxField("termsAccepted", "terms", "terms_accepted", Terms),
	}}

	LoginForm = Form{Fields: []Field{
		textField("email", "email", Email),
		{Name: "password", Key: "password", Kind: Secret, validate: func(v models.FormValues, n string) string {
			return Password(v.Text(n))
		}},
	}}
)
