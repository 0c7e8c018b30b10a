package validation

import (
	"errors"
	"testing"
)

func TestValidateBatch(t *testing.T) {
	url := "https://www.youtube.com/watch?v=abc"

	tests := []struct {
		name      string
		urls      []string
		paths     []string
		wantErr   error
		wantField string
	}{
		{"single", []string{url}, []string{"shows"}, nil, ""},
		{"five", []string{url, url, url, url, url}, []string{"a", "b", "c", "d", "e.mp4"}, nil, ""},
		{"empty", nil, nil, ErrEmptyBatch, "urls"},
		{"mismatch", []string{url, url}, []string{"a"}, ErrLengthMismatch, "targetPaths"},
		{"six", []string{url, url, url, url, url, url}, []string{"a", "b", "c", "d", "e", "f"}, ErrBatchTooLarge, "urls"},
		{"bad url", []string{url, "ftp://host/file"}, []string{"a", "b"}, ErrInvalidURL, "urls[1]"},
		{"bad path", []string{url}, []string{"../../etc"}, ErrPathEscapesRoot, "targetPaths[0]"},
		{"blank path", []string{url}, []string{"  "}, ErrEmptyTargetPath, "targetPaths[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.urls, tt.paths, 5)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Expected field %q, got %q", tt.wantField, verr.Field)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://youtu.be/abc", "http://example.com/v.mp4", " https://vimeo.com/1 "}
	invalid := []string{"", "youtube.com/watch", "file:///etc/passwd", "https://", "javascript:alert(1)"}

	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
	for _, u := range invalid {
		if err := ValidateURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateURL(%q) = %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestValidateTargetPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr error
	}{
		{"shows", nil},
		{"shows/", nil},
		{"/shows/season1", nil},
		{"movies/clip.mp4", nil},
		{"a/../b", nil},
		{"/", nil},
		{"", ErrEmptyTargetPath},
		{"..", ErrPathEscapesRoot},
		{"a/../../b", ErrPathEscapesRoot},
		{"/../etc", ErrPathEscapesRoot},
		{"..\\windows", ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		err := ValidateTargetPath(tt.path)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateTargetPath(%q) = %v, want %v", tt.path, err, tt.wantErr)
		}
	}
}

func TestRequired(t *testing.T) {
	if err := Required("username", "bob", "password", "x"); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}

	err := Required("username", "bob", "password", "")
	var verr *Error
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Errorf("Expected password field error, got %v", err)
	}
}
