package storage

import (
	"fmt"
	"strings"

	"github.com/biter777/countries"
	"github.com/go-playground/validator/v10"

	"github.com/kickai/kickai/internal/apperr"
)

// validate is shared across every Create* repository method. It is the
// single choke point where entity struct tags (required, e164, min/max,
// email, uuid4 — see internal/entity) are actually enforced; nothing
// upstream of storage re-checks them.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("e164cc", validatePhoneCallingCode); err != nil {
		panic(fmt.Sprintf("storage: register e164cc validator: %v", err))
	}
	return v
}

// validatePhoneCallingCode re-checks an already e164-shaped number against
// biter777/countries' calling-code table, catching numbers that pass the
// "+digits" regex but start with a calling code nobody issues (e.g.
// +999...). Registered alongside, not instead of, the built-in "e164" tag.
func validatePhoneCallingCode(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	if phone == "" {
		return true // "required" handles emptiness; this tag only judges shape
	}
	if !strings.HasPrefix(phone, "+") {
		return false
	}
	digits := phone[1:]
	for length := 3; length >= 1; length-- {
		if length > len(digits) {
			continue
		}
		if countries.CallCode(mustAtoi(digits[:length])).Info() != nil {
			return true
		}
	}
	return false
}

func mustAtoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// validateEntity runs struct-tag validation and, on failure, folds the
// first violation into an apperr.InvalidInput message a reply can surface
// to the sender verbatim (§4.10's FromEnvelope passes InvalidInput through
// unchanged).
func validateEntity(e interface{}) error {
	if err := validate.Struct(e); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.New(apperr.InvalidInput, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
		return apperr.New(apperr.InvalidInput, "input failed validation")
	}
	return nil
}
