package validator

import (
	"errors"
	"strings"
)

// FieldError is one failed check. Code is a stable machine-readable name
// such as "required" or "one_of"; Params holds the values the check used.
type FieldError struct {
	Field   string         `json:"field"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// Errors is the set of failures returned by Apply.
type Errors []FieldError

func (e Errors) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	for i, fe := range e {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field)
		b.WriteString(": ")
		b.WriteString(fe.Message)
	}
	return b.String()
}

func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Messages returns the messages reported for field.
func (e Errors) Messages(field string) []string {
	var out []string
	for _, fe := range e {
		if fe.Field == field {
			out = append(out, fe.Message)
		}
	}
	return out
}

// Fields lists failing fields in first-seen order.
func (e Errors) Fields() []string {
	var out []string
	for _, fe := range e {
		if !containsString(out, fe.Field) {
			out = append(out, fe.Field)
		}
	}
	return out
}

// ByField groups messages per field, the shape HTTP error bodies use.
func (e Errors) ByField() map[string][]string {
	out := make(map[string][]string, len(e))
	for _, fe := range e {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// Rule returns nil when the value passes.
type Rule func() *FieldError

// Apply runs every rule and returns the failures as Errors, or nil.
func Apply(rules ...Rule) error {
	var errs Errors
	for _, r := range rules {
		if r == nil {
			continue
		}
		if fe := r(); fe != nil {
			errs = append(errs, *fe)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// When returns r if cond holds and a nil rule otherwise.
func When(cond bool, r Rule) Rule {
	if !cond {
		return nil
	}
	return r
}

// Check builds a rule from an already computed condition.
func Check(ok bool, field, code, message string) Rule {
	return func() *FieldError {
		if ok {
			return nil
		}
		return &FieldError{Field: field, Code: code, Message: message}
	}
}

// As returns the Errors in err's chain, or nil.
func As(err error) Errors {
	var errs Errors
	if errors.As(err, &errs) {
		return errs
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
