package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shikkha/pkg/domain-errors"
)

type sample struct {
	StudentName string `validate:"required,notblank,min=2,max=100,person_name"`
	Kind        string `validate:"required,oneof=Degree Diploma"`
	Institution string `validate:"omitempty,institution_name"`
	Website     string `validate:"omitempty,http_url"`
	LogoURL     string `validate:"omitempty,logo_url"`
}

func valid() sample {
	return sample{
		StudentName: "Anne-Marie O'Neil",
		Kind:        "Degree",
		Institution: "North South University 2",
		Website:     "https://nsu.example",
		LogoURL:     "https://nsu.example/logo.PNG",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name    string
		mutate  func(*sample)
		message string
	}{
		{"missing name", func(s *sample) { s.StudentName = "" }, "student_name is required"},
		{"blank name", func(s *sample) { s.StudentName = "   " }, "student_name must not be blank"},
		{"short name", func(s *sample) { s.StudentName = "A" }, "student_name must be at least 2 characters"},
		{"long name", func(s *sample) { s.StudentName = strings.Repeat("a", 101) }, "student_name must be at most 100 characters"},
		{"digits in name", func(s *sample) { s.StudentName = "R2D2" }, "student_name may only contain letters, spaces, apostrophes and hyphens"},
		{"unknown kind", func(s *sample) { s.Kind = "Badge" }, "kind must be one of [Degree Diploma]"},
		{"punctuation in institution", func(s *sample) { s.Institution = "Uni!" }, "institution may only contain letters, digits, spaces and hyphens"},
		{"ftp website", func(s *sample) { s.Website = "ftp://nsu.example" }, "website must be an http or https url"},
		{"logo not an image", func(s *sample) { s.LogoURL = "https://nsu.example/logo.gif" }, "logo_url must be an http or https url ending in .png, .jpg, .jpeg or .svg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			var domainErr *dErrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.message, domainErr.Message)
		})
	}
}
