package controlapi

import (
	"regexp"
	"strings"
	"time"

	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/store"
)

// flagKeyRegex ensures keys are URL-safe slugs (lowercase, numbers, hyphens).
var flagKeyRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

const maxDescriptionLength = 1024

// Flag is the flag resource returned by the API.
type Flag struct {
	ID          int64           `json:"id"`
	Key         string          `json:"key"`
	Description string          `json:"description"`
	Config      evaluation.Flag `json:"config"`

	// Version is the monotonic counter for optimistic locking.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func flagFromStore(f *store.Flag) Flag {
	return Flag{
		ID:          f.ID,
		Key:         f.Key,
		Description: f.Description,
		Config:      f.Config,
		Version:     f.Version,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// validateFlagKey enforces the format and length rules for the natural key.
func validateFlagKey(key string) *ErrorResponse {
	if key == "" {
		return invalidInput("key", "Key is required")
	}
	if len(key) < 3 || len(key) > 255 {
		return invalidInput("key", "Key must be between 3 and 255 characters")
	}
	if !flagKeyRegex.MatchString(key) {
		return invalidInput("key", "Key must strictly contain only lowercase letters, numbers, and hyphens (slug format)")
	}
	return nil
}

func validateDescription(desc string) *ErrorResponse {
	if len(desc) > maxDescriptionLength {
		return invalidInput("description", "Description must be at most 1024 characters")
	}
	return nil
}

// validateConfig checks the evaluation definition of a flag stored under key.
// The config key is optional in payloads and always follows the URL or body key.
func validateConfig(key string, cfg *evaluation.Flag) *ErrorResponse {
	if cfg.Key != "" && cfg.Key != key {
		return invalidInput("config.key", "Config key must match the flag key")
	}
	cfg.Key = key
	if err := cfg.Validate(); err != nil {
		return &ErrorResponse{
			Code:    "ERR_INVALID_CONFIG",
			Message: "Invalid flag configuration",
			Details: []ErrorDetail{{Field: "config", Issue: err.Error()}},
		}
	}
	return nil
}

func invalidInput(field, msg string) *ErrorResponse {
	return &ErrorResponse{
		Code:    "ERR_INVALID_INPUT",
		Message: msg,
		Details: []ErrorDetail{{Field: field, Issue: msg}},
	}
}

// CreateFlagRequest is the payload of POST /api/v1/flags.
type CreateFlagRequest struct {
	// Key is required and immutable. Matches '^[a-z0-9-]+$'.
	Key         string          `json:"key"`
	Description string          `json:"description,omitempty"`
	Config      evaluation.Flag `json:"config"`
}

// Sanitize trims whitespace and lowercases the key.
func (r *CreateFlagRequest) Sanitize() {
	r.Key = strings.ToLower(strings.TrimSpace(r.Key))
	r.Description = strings.TrimSpace(r.Description)
}

// Validate checks the request and fills Config.Key. It returns nil when the
// request is acceptable.
func (r *CreateFlagRequest) Validate() *ErrorResponse {
	if err := validateFlagKey(r.Key); err != nil {
		return err
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}
	return validateConfig(r.Key, &r.Config)
}

// UpdateFlagRequest is the payload of PATCH /api/v1/flags/{key}.
// Nil fields are left untouched. Version is the version the caller last read.
type UpdateFlagRequest struct {
	Version     int64            `json:"version"`
	Description *string          `json:"description,omitempty"`
	Config      *evaluation.Flag `json:"config,omitempty"`
}

// Sanitize trims the description.
func (r *UpdateFlagRequest) Sanitize() {
	if r.Description != nil {
		trimmed := strings.TrimSpace(*r.Description)
		r.Description = &trimmed
	}
}

// Validate checks the provided fields against the flag stored under key.
func (r *UpdateFlagRequest) Validate(key string) *ErrorResponse {
	if r.Version < 1 {
		return invalidInput("version", "Version is required for updates")
	}
	if r.Description == nil && r.Config == nil {
		return invalidInput("body", "At least one of description or config must be provided")
	}
	if r.Description != nil {
		if err := validateDescription(*r.Description); err != nil {
			return err
		}
	}
	if r.Config != nil {
		return validateConfig(key, r.Config)
	}
	return nil
}

// EvaluateRequest is the payload of POST /api/v1/evaluate.
type EvaluateRequest struct {
	Context  evaluation.Context `json:"context"`
	FlagKeys []string           `json:"flag_keys,omitempty"`
}

// EvaluateResponse lists the variant assigned to each flag that matched.
type EvaluateResponse struct {
	Variants evaluation.Results `json:"variants"`
}

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}
