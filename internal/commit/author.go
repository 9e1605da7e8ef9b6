package commit

import (
	"regexp"
	"strings"

	"vff/internal/errors"
	"vff/internal/revision"
)

var (
	namedAuthor = regexp.MustCompile(`^([^<]+) <(.+)>$`)
	emailAuthor = regexp.MustCompile(`^([^@]+)@.+$`)
)

// ParseAuthor normalizes a free-form author string.
//
//	"Jane Doe <jane@example.com>"  name "Jane Doe", email "jane@example.com"
//	"jane@example.com"             name "jane", email "jane@example.com"
//	"jane"                         name and email "jane"
func ParseAuthor(raw string) (revision.Author, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return revision.Author{}, errors.ValidationError("author is required", nil)
	}

	if m := namedAuthor.FindStringSubmatch(raw); m != nil {
		return revision.Author{Name: strings.TrimSpace(m[1]), Email: m[2]}, nil
	}
	if m := emailAuthor.FindStringSubmatch(raw); m != nil {
		return revision.Author{Name: m[1], Email: raw}, nil
	}
	return revision.Author{Name: raw, Email: raw}, nil
}
