package validation

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/errors"
)

func TestCommitMetadataDecodesHeaders(t *testing.T) {
	tests := []struct {
		name        string
		author      string
		message     string
		wantAuthor  string
		wantMessage string
	}{
		{"encoded", EncodeHeader("Ann <ann@example.com>"), EncodeHeader("Fix typo\n\nLonger body"), "Ann <ann@example.com>", "Fix typo\n\nLonger body"},
		{"plain", "ann", "edit", "ann", "edit"},
		{"undecodable kept verbatim", "ann", "100%", "ann", "100%"},
		{"plus is literal", "ann", "a+b", "ann", "a+b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("PUT", "/", nil)
			r.Header.Set(HeaderAuthor, tt.author)
			r.Header.Set(HeaderMessage, tt.message)

			author, message, err := CommitMetadata(r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthor, author)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestCommitMetadataRequiresAuthor(t *testing.T) {
	r := httptest.NewRequest("PUT", "/", nil)
	r.Header.Set(HeaderAuthor, EncodeHeader("  "))

	_, _, err := CommitMetadata(r)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
