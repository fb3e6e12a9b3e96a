package config

import (
	"fmt"
	"strings"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       any
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("  %s: %s\n", err.Field, err.Message))
		for _, suggestion := range err.Suggestions {
			builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
		}
	}
	return builder.String()
}

func (vr *ValidationResult) add(field string, value any, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     msg,
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails checks every section and reports all problems.
func ValidateConfigWithDetails(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.Cache.MaxSize <= 0 {
		result.add("cache.max_size", cfg.Cache.MaxSize, "must be greater than 0")
	}
	if cfg.Cache.TTL <= 0 {
		result.add("cache.ttl", cfg.Cache.TTL, "must be greater than 0", `use a duration such as "1h" or "30m"`)
	}

	if strings.TrimSpace(cfg.Compile.JSXRuntime) == "" {
		result.add("compile.jsx_runtime", cfg.Compile.JSXRuntime, "must not be empty")
	}

	validateServer(&cfg.Server, result)

	if _, err := validation.ValidatePath(cfg.Build.OutputDir); err != nil {
		result.add("build.output_dir", cfg.Build.OutputDir,
			"must be a non-empty path without '..' segments")
	}
	if cfg.Build.Workers < 0 {
		result.add("build.workers", cfg.Build.Workers, "must not be negative", "0 uses one worker per CPU")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		result.add("log.level", cfg.Log.Level, err.Error(), "use one of debug, info, warn, error")
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		result.add("log.format", cfg.Log.Format, "must be text or json")
	}

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if s.Port < 0 || s.Port > 65535 {
		result.add("server.port", s.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", s.Port),
			"port 0 lets the system pick a free port")
	}
	if strings.ContainsAny(s.Host, " \t\r\n/") {
		result.add("server.host", s.Host, "must be a bare host name or address")
	}
	if _, err := validation.ValidatePath(s.ContentDir); err != nil {
		result.add("server.content_dir", s.ContentDir,
			"must be a non-empty path without '..' segments")
	}
	for _, host := range s.RemoteHosts {
		if !validation.IsHostName(host) {
			result.add("server.remote_hosts", host,
				fmt.Sprintf("%q is not a host name", host),
				"list hosts without scheme or path, e.g. raw.githubusercontent.com")
		}
	}
	if s.FetchTimeout <= 0 {
		result.add("server.fetch_timeout", s.FetchTimeout, "must be greater than 0")
	}
	if s.MaxBodyBytes <= 0 {
		result.add("server.max_body_bytes", s.MaxBodyBytes, "must be greater than 0")
	}
	if s.Debounce < 0 {
		result.add("server.debounce", s.Debounce, "must not be negative")
	}
}

// Validate returns a config error listing every problem, or nil.
func Validate(cfg *Config) error {
	result := ValidateConfigWithDetails(cfg)
	if !result.HasErrors() {
		return nil
	}

	err := errors.NewConfigError(errors.CodeConfigInvalid, "invalid configuration:\n"+result.String())
	fields := make([]string, 0, len(result.Errors))
	for _, ve := range result.Errors {
		fields = append(fields, ve.Field)
	}
	return err.WithContext("fields", fields)
}
