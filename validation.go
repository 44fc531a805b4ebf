package main

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrEmptyField        = errors.New("required field is empty")
	ErrFieldTooLong      = errors.New("field exceeds maximum length")
	ErrRequestBodyTooBig = errors.New("request body too large")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	MaxEmailLength      = 255
	MaxPasswordLength   = 1024
	MaxScopeIDLength    = 64
	MaxFamilies         = 50
	MaxRequestBodyBytes = 1 * 1024 * 1024 // 1MB
)

var (
	bookingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	resourcePattern  = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: ErrEmptyField.Error()}
	}

	if len(email) > MaxEmailLength {
		return &ValidationError{Field: "email", Message: ErrFieldTooLong.Error()}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "email", Message: ErrInvalidEmail.Error()}
	}

	return nil
}

func ValidateLoginRequest(req *LoginRequest) error {
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}

	if req.Password == "" {
		return &ValidationError{Field: "password", Message: ErrEmptyField.Error()}
	}
	if len(req.Password) > MaxPasswordLength {
		return &ValidationError{Field: "password", Message: ErrFieldTooLong.Error()}
	}

	if utf8.RuneCountInString(req.OrganizationID) > MaxScopeIDLength {
		return &ValidationError{Field: "organization_id", Message: ErrFieldTooLong.Error()}
	}
	if utf8.RuneCountInString(req.AgencyID) > MaxScopeIDLength {
		return &ValidationError{Field: "agency_id", Message: ErrFieldTooLong.Error()}
	}

	return nil
}

// ValidateBookingID accepts the numeric ids and booking numbers the agency
// API uses in booking URLs.
func ValidateBookingID(id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Message: ErrEmptyField.Error()}
	}
	if !bookingIDPattern.MatchString(id) {
		return &ValidationError{Field: "id", Message: "invalid booking id"}
	}
	return nil
}

func ValidateResource(resource string) error {
	if resource == "" {
		return &ValidationError{Field: "resource", Message: ErrEmptyField.Error()}
	}
	if !resourcePattern.MatchString(resource) {
		return &ValidationError{Field: "resource", Message: "invalid resource name"}
	}
	return nil
}

// ParseFamilySizes reads a comma separated list such as "2,3". An empty
// string means no split.
func ParseFamilySizes(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &ValidationError{Field: "families", Message: fmt.Sprintf("invalid family size %q", p)}
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// ValidateFamilySizes requires every family to be non-empty and the sizes to
// add up to the booking's passenger count.
func ValidateFamilySizes(sizes []int, paxTotal int) error {
	if len(sizes) > MaxFamilies {
		return &ValidationError{Field: "families", Message: "too many families"}
	}

	sum := 0
	for _, size := range sizes {
		if size <= 0 {
			return &ValidationError{Field: "families", Message: "family sizes must be positive"}
		}
		sum += size
	}
	if sum != paxTotal {
		return &ValidationError{
			Field:   "families",
			Message: fmt.Sprintf("family sizes add up to %d but the booking has %d passengers", sum, paxTotal),
		}
	}
	return nil
}
