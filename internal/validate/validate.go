// Package validate holds the small lexical checks shared by the manifest
// parser and the script host facades. The checks are a handful of
// rejection rules, not a parser.
package validate

import (
	"fmt"
	"strings"
)

// Alias reports whether name is a legal alias identifier: non-empty,
// not all whitespace, free of NUL, not "--", not starting with "-",
// not "." or "..", and free of path separators.
func Alias(name string) error {
	if name == "" {
		return fmt.Errorf("alias identifier cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("alias identifier cannot be whitespace-only")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("alias identifier cannot contain NUL bytes")
	}
	if name == "--" {
		return fmt.Errorf("alias identifier cannot be \"--\"")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("alias identifier cannot start with \"-\"")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("alias identifier cannot be %q", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("alias identifier cannot contain a path separator")
	}
	return nil
}

// NoNUL reports whether value contains a NUL byte, tagging the error with
// field for caller context.
func NoNUL(field, value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s cannot contain NUL bytes", field)
	}
	return nil
}

// NotBlank trims value and rejects it if empty, after checking for NUL.
func NotBlank(field, value string) (string, error) {
	if err := NoNUL(field, value); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s cannot be blank", field)
	}
	return trimmed, nil
}

// EnvKey validates an environment variable key: no "=", no NUL, non-blank
// after trimming.
func EnvKey(key string) (string, error) {
	if err := NoNUL("env key", key); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("env key cannot be blank")
	}
	if strings.Contains(trimmed, "=") {
		return "", fmt.Errorf("env key %q cannot contain \"=\"", trimmed)
	}
	return trimmed, nil
}

// EnvValue validates an environment variable value: no NUL.
func EnvValue(value string) error {
	return NoNUL("env value", value)
}

// Path validates a path argument: non-blank, NUL-free.
func Path(field, value string) (string, error) {
	return NotBlank(field, value)
}

// Timeout validates a timeout in milliseconds: negative is rejected,
// zero means "no timeout" and is represented as a zero duration upstream.
func Timeout(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}
