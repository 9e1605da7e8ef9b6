// internal/revision/types.go
package revision

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vff/internal/errors"
)

// MaxPathLen bounds document paths so they fit comfortably in log keys.
const MaxPathLen = 1024

// Author is the normalized identity a revision is attributed to.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a Author) String() string {
	if a.Name == a.Email {
		return a.Name
	}
	return a.Name + " <" + a.Email + ">"
}

// Revision is one immutable recorded state of a document
type Revision struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Seq         uint64    `json:"seq"` // 1-based position in the path's log
	ContentHash string    `json:"content_hash"`
	Author      Author    `json:"author"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	ParentID    string    `json:"parent_id,omitempty"` // Empty at the start of a chain
	Tombstone   bool      `json:"tombstone,omitempty"`
}

// Entry is what the commit coordinator hands to Log.Append.
type Entry struct {
	Path        string
	ContentHash string
	Author      Author
	Message     string
	Timestamp   time.Time
	Tombstone   bool
}

// Log defines how revision history is stored and queried
type Log interface {
	// Append records a new revision at the head of entry.Path and assigns
	// its ID, Seq and ParentID.
	Append(ctx context.Context, entry Entry) (*Revision, error)

	// List returns revisions most recent first, skipping offset and
	// returning at most count (count <= 0 means all).
	List(ctx context.Context, path string, offset, count int) ([]*Revision, error)

	// Get returns the revision with the given id, or the latest one when
	// id is empty.
	Get(ctx context.Context, path, id string) (*Revision, error)

	Close() error
}

// NewID returns a time-ordered revision id. Callers generate it while
// holding the path's write lock, so id order follows commit order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Link fills in the fields that depend on the previous head of the path.
func Link(entry Entry, head *Revision) *Revision {
	rev := &Revision{
		ID:          NewID(),
		Path:        entry.Path,
		Seq:         1,
		ContentHash: entry.ContentHash,
		Author:      entry.Author,
		Message:     entry.Message,
		Timestamp:   entry.Timestamp.UTC(),
		Tombstone:   entry.Tombstone,
	}
	if head != nil {
		rev.Seq = head.Seq + 1
		// A recreate after a tombstone starts a fresh chain.
		if !head.Tombstone {
			rev.ParentID = head.ID
		}
	}
	return rev
}

// ValidatePath rejects paths that cannot be stored as log keys.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return errors.ValidationError("document path is required", nil)
	case len(path) > MaxPathLen:
		return errors.ValidationError("document path too long", len(path))
	case strings.ContainsRune(path, 0):
		return errors.ValidationError("document path contains NUL", path)
	}
	return nil
}
