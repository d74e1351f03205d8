package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "receiptvault/pkg/domain-errors"
)

type sample struct {
	Content        string   `validate:"required,notblank"`
	RetentionClass string   `validate:"required,oneof=temporary standard"`
	Tags           []string `validate:"max=3,dive,trimmed"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantMsg string
	}{
		{"missing content", sample{RetentionClass: "temporary"}, "content is required"},
		{"blank content", sample{Content: "   ", RetentionClass: "temporary"}, "content must not be blank"},
		{"bad class", sample{Content: "x", RetentionClass: "forever"}, "retention_class must be one of [temporary standard]"},
		{"too many tags", sample{Content: "x", RetentionClass: "standard", Tags: []string{"a", "b", "c", "d"}}, "tags must be at most 3"},
		{"padded tag", sample{Content: "x", RetentionClass: "standard", Tags: []string{"a", " b"}}, "tags[1] must not have leading or trailing whitespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	require.NoError(t, Validate(sample{Content: "x", RetentionClass: "standard"}))
}
