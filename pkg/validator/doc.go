// Package validator collects field-level validation failures.
//
// A Rule is a closure returning a *FieldError on failure. Apply runs rules
// in order and returns every failure as Errors:
//
//	err := validator.Apply(
//	    validator.Required("recipientId", n.RecipientID),
//	    validator.When(n.Priority != "", validator.OneOf("priority", n.Priority, priorities)),
//	    validator.Link("actions[0].url", url, true),
//	)
//	if errs := validator.As(err); errs.Has("priority") {
//	    // ...
//	}
package validator
