package web

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	// phoneRegex accepts E.164-style numbers: optional +, 7-15 digits.
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

	// filenameRegex constrains uploaded filenames to a single safe path
	// segment. Extensions matter downstream (content type, zip entries).
	filenameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._ -]{0,127}$`)
)

// imageContentTypes is the allowlist for guest reference photos.
var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

func validEventID(id string) bool {
	return uuidRegex.MatchString(strings.ToLower(id))
}

func validPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

func validFilename(name string) bool {
	if !filenameRegex.MatchString(name) {
		return false
	}
	return !containsPathTraversal(name)
}

// containsPathTraversal checks the raw segments before filepath.Clean
// resolves them, because Clean("a/../b") silently produces "b" with no ".."
// remaining.
func containsPathTraversal(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// validateNameFragment checks a human-entered name that becomes one segment
// of the event storage folder (photographer name, event name).
func validateNameFragment(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > 128 {
		return fmt.Errorf("%s is too long", field)
	}
	if strings.ContainsAny(value, `/\`) || containsPathTraversal(value) || value == "." {
		return fmt.Errorf("%s contains invalid characters", field)
	}
	return nil
}

// validateEventDate requires the YYYY-MM-DD form used in the storage layout.
func validateEventDate(value string) error {
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("event date must be YYYY-MM-DD")
	}
	return nil
}
