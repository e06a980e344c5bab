// Package inputval validates form and configuration input.
//
// Forms declare their rules as struct tags and get back one display message
// per broken rule:
//
//	type registerInput struct {
//	    Email string `validate:"required,max=255" label:"Email" msg:"required=Email required;max=Email too long"`
//	}
//
// Rules run in tag order and stop at the first failure of each field, so a
// form can show res.First() and know it is the earliest problem.
package inputval

import (
	"net/mail"
	"net/netip"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/waffle/pantry/validate"
)

// FieldError is one broken rule.
type FieldError struct {
	Field   string
	Label   string
	Rule    string
	Message string
}

// Result holds the broken rules in field order.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Field returns the message for the named struct field, or "".
func (r *Result) Field(name string) string {
	for _, e := range r.Errors {
		if e.Field == name {
			return e.Message
		}
	}
	return ""
}

var (
	validator     *validate.Validator
	validatorOnce sync.Once
)

func rules() *validate.Validator {
	validatorOnce.Do(func() {
		validator = validate.New(validate.WithStopOnFirstError())
		validator.RegisterRuleFunc("httpurl", stringRule(IsValidHTTPURL), "httpurl")
		validator.RegisterRuleFunc("cidr", stringRule(IsValidCIDR), "cidr")
		validator.RegisterRuleFunc("mailbox", stringRule(IsValidEmail), "mailbox")
	})
	return validator
}

func stringRule(fn func(string) bool) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && fn(s)
	}
}

// Validate checks s against its `validate` tags.
//
// Besides the pantry/validate rules (required, min, max, email) three are
// registered here: httpurl, cidr, and mailbox (a bare RFC 5322 address, no
// display name). A `label` tag names the field in generated messages and a
// `msg` tag replaces them per rule.
func Validate(s any) *Result {
	res := &Result{}
	err := rules().Struct(s)
	if err == nil {
		return res
	}
	errs, ok := err.(validate.Errors)
	if !ok {
		res.Errors = append(res.Errors, FieldError{Rule: "invalid", Message: "Input is invalid."})
		return res
	}

	labels, overrides := fieldTags(s)
	for _, e := range errs {
		label := labels[e.Field]
		if label == "" {
			label = e.Field
		}
		msg := overrides[e.Field][e.Rule]
		if msg == "" {
			msg = message(label, e.Rule, e.Param)
		}
		res.Errors = append(res.Errors, FieldError{Field: e.Field, Label: label, Rule: e.Rule, Message: msg})
	}
	return res
}

// fieldTags reads the label and msg tags of s.
func fieldTags(s any) (map[string]string, map[string]map[string]string) {
	labels := make(map[string]string)
	overrides := make(map[string]map[string]string)

	val := reflect.Indirect(reflect.ValueOf(s))
	if val.Kind() != reflect.Struct {
		return labels, overrides
	}
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if l := f.Tag.Get("label"); l != "" {
			labels[f.Name] = l
		}
		if m := f.Tag.Get("msg"); m != "" {
			overrides[f.Name] = parseMessages(m)
		}
	}
	return labels, overrides
}

// parseMessages splits "rule=message;rule=message".
func parseMessages(tag string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(tag, ";") {
		rule, msg, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(rule)] = strings.TrimSpace(msg)
	}
	return out
}

func message(label, rule, param string) string {
	switch rule {
	case "required":
		return label + " is required."
	case "email", "mailbox":
		return label + " must be an email address."
	case "min":
		return label + " must be at least " + param + " characters."
	case "max":
		return label + " must be at most " + param + " characters."
	case "httpurl":
		return label + " must be a URL starting with http:// or https://."
	case "cidr":
		return label + " must be an IP address or CIDR range."
	default:
		return label + " is invalid."
	}
}

// IsValidEmail reports whether s is a bare address that net/mail accepts.
// "Name <a@b.com>" is rejected.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// IsValidHTTPURL reports whether s parses as an http or https URL with a host.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidCIDR reports whether s is an IP prefix ("10.0.0.0/8") or a bare
// address.
func IsValidCIDR(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
