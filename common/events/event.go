// Package events defines the exception event exchanged between the reporter
// library, the bus and the monitor, together with its JSON codec.
//
// Fields may only ever be added, and new fields must be optional: removing or
// renaming a field breaks producers and consumers deployed independently.
package events

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Event is one captured failure with its deployment and request context.
// Empty strings mean "absent".
type Event struct {
	ID            string        `json:"id" validate:"required,max=255"`
	ExceptionType string        `json:"exceptionType" validate:"required,max=1024"`
	Message       string        `json:"message,omitempty"`
	StackTrace    string        `json:"stackTrace,omitempty"`
	Timestamp     LocalDateTime `json:"timestamp"`

	ProjectName   string `json:"projectName,omitempty"`
	ComponentName string `json:"componentName,omitempty"`
	PodName       string `json:"podName,omitempty"`
	PodIP         string `json:"podIp,omitempty"`
	ClusterName   string `json:"clusterName,omitempty"`
	Environment   string `json:"environment,omitempty"`

	ServiceName string `json:"serviceName,omitempty"`
	Method      string `json:"method,omitempty"`
	URL         string `json:"url,omitempty"`
	UserAgent   string `json:"userAgent,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`

	// AdditionalData is carried verbatim. See AdditionalData for the keys
	// the reporter library fills in.
	AdditionalData json.RawMessage `json:"additionalData,omitempty"`
}

var (
	// ErrDecode marks payloads that are not a JSON event.
	ErrDecode = errors.New("decode event")

	// ErrValidation marks events missing mandatory fields.
	ErrValidation = errors.New("invalid event")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode serialises e. HTML characters are left unescaped so additional data
// reaches the store exactly as the producer wrote it.
func Encode(e *Event) ([]byte, error) {
	data, err := json.MarshalNoEscape(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses a JSON event. Unknown fields are ignored and missing fields
// stay empty. A malformed timestamp does not fail decoding; see
// LocalDateTime.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if isJSONNull(e.AdditionalData) {
		e.AdditionalData = nil
	}
	return &e, nil
}

// Validate checks the mandatory fields of e.
func Validate(e *Event) error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// StoredAdditionalData returns the text kept for raw: the bytes unchanged,
// or "" when raw is absent or JSON null.
func StoredAdditionalData(raw []byte) string {
	if len(raw) == 0 || isJSONNull(raw) {
		return ""
	}
	return string(raw)
}

func isJSONNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
