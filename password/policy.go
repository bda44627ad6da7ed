package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy describes the composition rules a new password must satisfy.
type Policy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// Result is the outcome of Policy.Validate. Errors is empty when Valid is true.
type Result struct {
	Valid  bool
	Errors []string
}

// Check rejects policies that could never be satisfied.
func (p Policy) Check() error {
	if p.MinLength < 1 {
		return fmt.Errorf("password min length must be >= 1")
	}
	if p.MaxLength > 0 && p.MaxLength < p.MinLength {
		return fmt.Errorf("password max length %d is below min length %d", p.MaxLength, p.MinLength)
	}
	return nil
}

// Validate checks password against every rule and reports all violations,
// in the same order as Requirements.
func (p Policy) Validate(password string) Result {
	var (
		upper, lower, digit, special bool
		errs                         []string
	)
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}

	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d characters", p.MaxLength))
	}
	if p.RequireUppercase && !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLowercase && !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSpecial && !special {
		errs = append(errs, "password must contain a special character")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Requirements lists the active rules in human-readable form.
func (p Policy) Requirements() []string {
	reqs := []string{fmt.Sprintf("At least %d characters", p.MinLength)}
	if p.MaxLength > 0 {
		reqs = append(reqs, fmt.Sprintf("At most %d characters", p.MaxLength))
	}
	if p.RequireUppercase {
		reqs = append(reqs, "One uppercase letter")
	}
	if p.RequireLowercase {
		reqs = append(reqs, "One lowercase letter")
	}
	if p.RequireDigit {
		reqs = append(reqs, "One digit")
	}
	if p.RequireSpecial {
		reqs = append(reqs, "One special character")
	}
	return reqs
}

// String renders the requirements as a single sentence.
func (p Policy) String() string {
	return strings.Join(p.Requirements(), ", ")
}
