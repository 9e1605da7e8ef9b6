package validation

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vff/internal/errors"
	"vff/internal/revision"
)

// Request headers carrying commit metadata. Values are percent-encoded so
// multi-line messages survive as a single header line.
const (
	HeaderAuthor  = "X-Author"
	HeaderMessage = "X-Message"
)

// DocumentPath returns the {path...} wildcard of a document route.
func DocumentPath(r *http.Request) (string, error) {
	path := r.PathValue("path")
	if err := revision.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// CommitMetadata returns the decoded author and message of a write request.
func CommitMetadata(r *http.Request) (author, message string, err error) {
	author = strings.TrimSpace(headerValue(r, HeaderAuthor))
	if author == "" {
		return "", "", errors.ValidationError("author is required", HeaderAuthor)
	}
	return author, headerValue(r, HeaderMessage), nil
}

// EncodeHeader percent-encodes v for use as a commit metadata header.
func EncodeHeader(v string) string {
	return url.PathEscape(v)
}

// headerValue decodes a percent-encoded header. Values that do not decode,
// such as a bare "100%", are used as sent.
func headerValue(r *http.Request, name string) string {
	raw := r.Header.Get(name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

// Paging parses the count and offset query parameters. Missing values
// default to zero.
func Paging(r *http.Request) (count, offset int, err error) {
	q := r.URL.Query()
	if count, err = intParam(q.Get("count"), "count"); err != nil {
		return 0, 0, err
	}
	if offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return 0, 0, err
	}
	return count, offset, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationError("invalid "+name, raw)
	}
	return n, nil
}

// DiffRange returns the from and to revision ids of a diff request.
func DiffRange(r *http.Request) (from, to string, err error) {
	q := r.URL.Query()
	from, to = q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		return "", "", errors.ValidationError("from and to revisions are required", nil)
	}
	return from, to, nil
}
