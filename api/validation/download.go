package validation

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ValidateBatch checks a submission's shape and every entry in it. maxSize
// caps the number of pairs.
func ValidateBatch(urls, targetPaths []string, maxSize int) error {
	if len(urls) == 0 {
		return fieldError("urls", ErrEmptyBatch)
	}
	if len(urls) != len(targetPaths) {
		return fieldError("targetPaths", ErrLengthMismatch)
	}
	if len(urls) > maxSize {
		return fieldError("urls", fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(urls), maxSize))
	}

	for i := range urls {
		if err := ValidateURL(urls[i]); err != nil {
			return fieldError(fmt.Sprintf("urls[%d]", i), err)
		}
		if err := ValidateTargetPath(targetPaths[i]); err != nil {
			return fieldError(fmt.Sprintf("targetPaths[%d]", i), err)
		}
	}
	return nil
}

func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// ValidateTargetPath rejects empty paths and paths that leave the destination
// root once cleaned. Leading slashes are relative to the root.
func ValidateTargetPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return ErrEmptyTargetPath
	}
	if strings.ContainsRune(p, 0) {
		return ErrPathEscapesRoot
	}

	normalized := strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return ErrPathEscapesRoot
	}
	return nil
}

// Required returns an Error for the first empty field in pairs of name, value.
func Required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fieldError(pairs[i], ErrMissingField)
		}
	}
	return nil
}
