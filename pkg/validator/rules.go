package validator

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

func Required(field, value string) Rule {
	return func() *FieldError {
		if strings.TrimSpace(value) != "" {
			return nil
		}
		return &FieldError{Field: field, Code: "required", Message: "is required"}
	}
}

// MaxLen counts runes, not bytes.
func MaxLen(field, value string, limit int) Rule {
	return func() *FieldError {
		if utf8.RuneCountInString(value) <= limit {
			return nil
		}
		return &FieldError{
			Field:   field,
			Code:    "max_length",
			Message: fmt.Sprintf("must be at most %d characters", limit),
			Params:  map[string]any{"max": limit},
		}
	}
}

func OneOf[T comparable](field string, value T, allowed []T) Rule {
	return func() *FieldError {
		if slices.Contains(allowed, value) {
			return nil
		}
		return &FieldError{
			Field:   field,
			Code:    "one_of",
			Message: fmt.Sprintf("must be one of %v, got %v", allowed, value),
			Params:  map[string]any{"allowed": allowed},
		}
	}
}

// EachOneOf reports the first element of values that is not allowed.
func EachOneOf[T comparable](field string, values, allowed []T) Rule {
	return func() *FieldError {
		for i, v := range values {
			if !slices.Contains(allowed, v) {
				return &FieldError{
					Field:   field,
					Code:    "one_of",
					Message: fmt.Sprintf("item %d must be one of %v, got %v", i, allowed, v),
					Params:  map[string]any{"allowed": allowed, "index": i},
				}
			}
		}
		return nil
	}
}

// After requires value to be strictly later than ref.
func After(field string, value, ref time.Time) Rule {
	return func() *FieldError {
		if value.After(ref) {
			return nil
		}
		return &FieldError{
			Field:   field,
			Code:    "after",
			Message: "must be after " + ref.Format(time.RFC3339),
			Params:  map[string]any{"after": ref},
		}
	}
}

// Link accepts absolute http(s) URLs and, when relative is set, paths
// starting with a single slash.
func Link(field, value string, relative bool) Rule {
	return func() *FieldError {
		if validLink(value, relative) {
			return nil
		}
		msg := "must be an absolute http(s) URL"
		if relative {
			msg = "must be an absolute http(s) URL or a path"
		}
		return &FieldError{Field: field, Code: "url", Message: msg}
	}
}

func validLink(value string, relative bool) bool {
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return false
	}
	if relative && strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") {
		return true
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
