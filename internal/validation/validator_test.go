// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package validation

import (
	"errors"
	"strings"
	"testing"
)

// uploadRequest mirrors the shape of a typical request body.
type uploadRequest struct {
	Category    string `json:"category" validate:"required,oneof=mf4 dbc layouts mappings analyses"`
	Description string `json:"description" validate:"max=500"`
	FileID      string `json:"file_id" validate:"omitempty,identifier"`
	Label       string `json:"label" validate:"omitempty,notblank"`
}

func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	var ve *RequestValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T, want *RequestValidationError", err)
	}
	return ve.Fields
}

func TestValidateStructAccepts(t *testing.T) {
	cases := []struct {
		name  string
		input uploadRequest
	}{
		{"all fields", uploadRequest{Category: "mf4", Description: "journal d'essai", FileID: "f_1a2b3c4d"}},
		{"minimal", uploadRequest{Category: "dbc"}},
		{"description at limit", uploadRequest{Category: "analyses", Description: strings.Repeat("x", 500)}},
	}
	for _, tc := range cases {
		if err := ValidateStruct(&tc.input); err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestValidateStructRejects(t *testing.T) {
	cases := []struct {
		name      string
		input     uploadRequest
		wantField string
		wantTag   string
	}{
		{"missing category", uploadRequest{}, "category", "required"},
		{"unknown category", uploadRequest{Category: "videos"}, "category", "oneof"},
		{"description too long", uploadRequest{Category: "mf4", Description: strings.Repeat("x", 501)}, "description", "max"},
		{"traversal shaped id", uploadRequest{Category: "mf4", FileID: "../../etc/passwd"}, "file_id", "identifier"},
		{"blank label", uploadRequest{Category: "mf4", Label: "   "}, "label", "notblank"},
	}
	for _, tc := range cases {
		err := ValidateStruct(&tc.input)
		if err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
			continue
		}
		found := false
		for _, fe := range fieldErrors(t, err) {
			if fe.Field == tc.wantField && fe.Tag == tc.wantTag {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: no %s failure on field %q in %v", tc.name, tc.wantTag, tc.wantField, err)
		}
	}
}

func TestErrorMessageIsUserFacing(t *testing.T) {
	err := ValidateStruct(&uploadRequest{})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if got := err.Error(); got != "Le champ 'category' est requis" {
		t.Errorf("single failure message = %q", got)
	}

	err = ValidateStruct(&uploadRequest{Category: "videos", Description: strings.Repeat("x", 501)})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "category") || !strings.Contains(msg, "description") {
		t.Errorf("joined message misses a field: %q", msg)
	}
	if !strings.Contains(msg, "; ") {
		t.Errorf("failures not joined with '; ': %q", msg)
	}
}

func TestValidIdentifier(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want bool
	}{
		{"simple", "abc123", true},
		{"uuid shape", "550e8400-e29b-41d4-a716-446655440000", true},
		{"underscore and dash", "file_1-final", true},
		{"single char", "a", true},
		{"max length", strings.Repeat("a", 64), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 65), false},
		{"traversal", "../../etc/passwd", false},
		{"dot dot", "..", false},
		{"slash", "a/b", false},
		{"backslash", "a\\b", false},
		{"space", "a b", false},
		{"dot", "file.mf4", false},
		{"null byte", "abc\x00", false},
	}
	for _, tc := range cases {
		if got := ValidIdentifier(tc.id); got != tc.want {
			t.Errorf("%s: ValidIdentifier(%q) = %v, want %v", tc.name, tc.id, got, tc.want)
		}
	}
}

func TestValidUserID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"00000000-0000-0000-0000-000000000000", true},
		{"", false},
		{"user123", false},
		{"../admin", false},
	}
	for _, tc := range cases {
		if got := ValidUserID(tc.id); got != tc.want {
			t.Errorf("ValidUserID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestValidSessionToken(t *testing.T) {
	valid := strings.Repeat("0123456789abcdef", 4)
	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", valid, true},
		{"all zeroes", strings.Repeat("0", 64), true},
		{"too short", valid[:63], false},
		{"too long", valid + "0", false},
		{"uppercase hex", strings.ToUpper(valid), false},
		{"non hex", strings.Repeat("g", 64), false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		if got := ValidSessionToken(tc.token); got != tc.want {
			t.Errorf("%s: ValidSessionToken = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     bool
	}{
		{"simple", "drive.mf4", true},
		{"spaces ok", "my drive log.mf4", true},
		{"unicode ok", "essai_véhicule.dbc", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dot dot", "..", false},
		{"slash", "a/b.mf4", false},
		{"backslash", "a\\b.mf4", false},
		{"null byte", "a\x00b", false},
		{"too long", strings.Repeat("a", 256), false},
		{"at limit", strings.Repeat("a", 255), true},
	}
	for _, tc := range cases {
		if got := SafeFilename(tc.filename); got != tc.want {
			t.Errorf("%s: SafeFilename(%q) = %v, want %v", tc.name, tc.filename, got, tc.want)
		}
	}
}

func TestFileExtension(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"drive.mf4", ".mf4"},
		{"DRIVE.MF4", ".mf4"},
		{"Drive.Mdf", ".mdf"},
		{"archive.tar.gz", ".gz"},
		{"README", ""},
		{"file.", ""},
		{".mf4", ".mf4"},
	}
	for _, tc := range cases {
		if got := FileExtension(tc.filename); got != tc.want {
			t.Errorf("FileExtension(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}
