package config

import (
	"fmt"
	"strings"

	"converge/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, entityType string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required for %s", entityType),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateEntityName validates that a controller or dependent name follows
// proper conventions.
func ValidateEntityName(name, entityType string) error {
	if err := ValidateRequired("name", name, entityType); err != nil {
		return err
	}
	if len(name) > 100 {
		return ValidationError{Field: "name", Value: name, Message: "must not exceed 100 characters"}
	}
	if strings.ContainsAny(name, " \t/") {
		return ValidationError{Field: "name", Value: name, Message: "cannot contain spaces or slashes"}
	}
	return nil
}

// FormatValidationError creates a consistent validation error message
func FormatValidationError(entityType, entityName string, err error) error {
	if err == nil {
		return nil
	}

	if entityName != "" {
		return fmt.Errorf("validation failed for %s '%s': %w", entityType, entityName, err)
	}
	return fmt.Errorf("validation failed for %s: %w", entityType, err)
}

// Validate checks the operator configuration.
func Validate(cfg ConvergeConfig) error {
	var errs ValidationErrors

	if cfg.Workers < 1 {
		errs.Add("workers", "must be at least 1", cfg.Workers)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs.Add("logLevel", err.Error(), cfg.LogLevel)
	}
	if err := ValidateOneOf("logFormat", cfg.LogFormat, []string{string(logging.FormatText), string(logging.FormatJSON)}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr == cfg.HealthAddr {
		errs.Add("healthAddr", "must differ from metricsAddr", cfg.HealthAddr)
	}
	if cfg.RateLimit.QPS < 0 {
		errs.Add("rateLimit.qps", "must not be negative", cfg.RateLimit.QPS)
	}
	if cfg.RateLimit.QPS > 0 && cfg.RateLimit.Burst < 1 {
		errs.Add("rateLimit.burst", "must be at least 1 when qps is set", cfg.RateLimit.Burst)
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs.Add("retry.maxAttempts", "must be at least 1", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialBackoff <= 0 {
		errs.Add("retry.initialBackoff", "must be positive", cfg.Retry.InitialBackoff)
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		errs.Add("retry.maxBackoff", "must not be below initialBackoff", cfg.Retry.MaxBackoff)
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter >= 1 {
		errs.Add("retry.jitter", "must be in [0, 1)", cfg.Retry.Jitter)
	}
	if cfg.ResyncPeriod < 0 {
		errs.Add("resyncPeriod", "must not be negative", cfg.ResyncPeriod)
	}
	if !cfg.Leaderless {
		errs.Add("leaderless", "leader election is not supported, run a single replica with leaderless: true")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
