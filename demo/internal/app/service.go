// Package app is a small HTTP service whose endpoints fail on request, used
// to exercise the reporter end to end.
package app

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
)

// InvalidArgumentError rejects caller input.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

// UnsupportedOperationError is raised for an unknown failure kind.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return "unsupported exception type: " + e.Op
}

// SecurityError refuses a banned address.
type SecurityError struct {
	Msg string
}

func (e *SecurityError) Error() string { return e.Msg }

// DatabaseError wraps a failed storage call.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ErrConnectionTimeout is the cause of every simulated database failure.
var ErrConnectionTimeout = fmt.Errorf("could not connect: connection timeout after 30 seconds")

// FailureKinds are the values accepted by Fail.
var FailureKinds = []string{"runtime", "illegal-argument", "null-pointer", "array-index"}

const bannedEmail = "test@banned.com"

var sink int

type Service struct {
	validate *validator.Validate
}

func NewService() *Service {
	return &Service{validate: validator.New()}
}

// Fail returns the failure named by kind. The null-pointer and array-index
// kinds raise real runtime panics, which come back as runtime.Error values.
func (s *Service) Fail(kind string) error {
	switch strings.ToLower(kind) {
	case "runtime":
		return fmt.Errorf("this is a test runtime error")
	case "illegal-argument":
		return &InvalidArgumentError{Msg: "invalid parameter supplied"}
	case "null-pointer":
		return capture(func() {
			var m *struct{ n int }
			sink = m.n
		})
	case "array-index":
		return capture(func() {
			values := []int{1, 2, 3}
			i := len(values) + 7
			sink = values[i]
		})
	default:
		return &UnsupportedOperationError{Op: kind}
	}
}

func capture(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if re, ok := p.(runtime.Error); ok {
				err = re
				return
			}
			panic(p)
		}
	}()
	fn()
	return nil
}

// ProcessUser validates a user update.
func (s *Service) ProcessUser(id int64, data map[string]any) error {
	if id <= 0 {
		return &InvalidArgumentError{Msg: fmt.Sprintf("invalid user id: %d", id)}
	}
	if len(data) == 0 {
		return &InvalidArgumentError{Msg: "user data must not be empty"}
	}
	if _, ok := data["name"]; !ok {
		return &InvalidArgumentError{Msg: "user data is missing 'name'"}
	}
	if id == 999 {
		return fmt.Errorf("user id 999 is reserved for failure tests")
	}
	return nil
}

func (s *Service) QueryDatabase() error {
	return &DatabaseError{Op: "query", Err: ErrConnectionTimeout}
}

func (s *Service) ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &InvalidArgumentError{Msg: "email must not be empty"}
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return &InvalidArgumentError{Msg: "invalid email format: " + email}
	}
	if email == bannedEmail {
		return &SecurityError{Msg: "email address is banned: " + email}
	}
	return nil
}
