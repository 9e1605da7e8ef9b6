// Package reader resolves revision ids to document content.
package reader

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"vff/internal/errors"
	"vff/internal/metrics"
	"vff/internal/revision"
)

// BlobSource is the part of the content store the reader needs.
type BlobSource interface {
	Get(hash string) ([]byte, error)
}

// Reader reads revision content from a log and a blob source
type Reader struct {
	blobs   BlobSource
	log     revision.Log
	encName string
	enc     encoding.Encoding // nil for UTF-8
	logger  *zap.Logger
}

// New builds a Reader that decodes content with the named encoding.
// An empty name means UTF-8.
func New(blobs BlobSource, log revision.Log, enc string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		blobs:   blobs,
		log:     log,
		encName: "utf-8",
		logger:  logger.Named("reader"),
	}

	if enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, errors.Configuration(err, "unknown encoding %q", enc)
		}
		name, _ := htmlindex.Name(e)
		if name == "utf-8" {
			return r, nil
		}
		r.encName = name
		r.enc = e
	}
	return r, nil
}

func isUTF8(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "utf-8" || n == "utf8"
}

// Encoding returns the canonical name of the configured encoding.
func (r *Reader) Encoding() string { return r.encName }

// Resolve returns the revision for id, or the latest revision when id is
// empty. A deleted document has no latest revision to resolve.
func (r *Reader) Resolve(ctx context.Context, path, id string) (*revision.Revision, error) {
	rev, err := r.log.Get(ctx, path, id)
	if err != nil {
		return nil, err
	}
	if id == "" && rev.Tombstone {
		return nil, errors.Deleted("document %s is deleted", path)
	}
	return rev, nil
}

// GetBytes returns the raw stored bytes of a revision. A tombstone reads as
// empty content.
func (r *Reader) GetBytes(ctx context.Context, path, id string) (content []byte, err error) {
	defer func() {
		metrics.Reads.WithLabelValues("get_bytes", metrics.Result(err)).Inc()
	}()

	rev, err := r.Resolve(ctx, path, id)
	if err != nil {
		return nil, err
	}
	if rev.Tombstone {
		return []byte{}, nil
	}
	return r.blobs.Get(rev.ContentHash)
}

// GetRevision returns the decoded text of a revision.
func (r *Reader) GetRevision(ctx context.Context, path, id string) (text string, err error) {
	defer func() {
		metrics.Reads.WithLabelValues("get", metrics.Result(err)).Inc()
	}()

	rev, err := r.Resolve(ctx, path, id)
	if err != nil {
		return "", err
	}
	if rev.Tombstone {
		return "", nil
	}

	content, err := r.blobs.Get(rev.ContentHash)
	if err != nil {
		return "", err
	}
	return r.decode(content, rev)
}

func (r *Reader) decode(content []byte, rev *revision.Revision) (string, error) {
	if r.enc == nil {
		if !utf8.Valid(content) {
			return "", errors.Decode(nil, "revision %s of %s is not valid utf-8", rev.ID, rev.Path)
		}
		return string(content), nil
	}

	// Decoders carry state, so each call gets its own.
	out, err := r.enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", errors.Decode(err, "revision %s of %s is not valid %s", rev.ID, rev.Path, r.encName)
	}
	r.logger.Debug("decoded revision",
		zap.String("id", rev.ID),
		zap.String("encoding", r.encName))
	return string(out), nil
}
