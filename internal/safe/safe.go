// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"vff/internal/errors"
	"vff/internal/metrics"
)

// Blob file header bytes.
const (
	formatRaw  byte = 0x00
	formatZstd byte = 0x01
)

const tmpMarker = "-tmp-"

// EmptyHash addresses the zero-length blob. Tombstones point at it.
var EmptyHash = HashContent(nil)

// Stats summarizes what the safe holds on disk.
type Stats struct {
	Blobs int   `json:"blobs"`
	Bytes int64 `json:"bytes"`
}

// Safe provides durable, deduplicated content storage
type Safe struct {
	fs     afero.Fs                   // Rooted at the objects directory
	cache  *lru.Cache[string, []byte] // Content cache
	comp   *compressionManager
	logger *zap.Logger
}

// Options configures Safe behavior
type Options struct {
	Root        string   // Root directory path, used when Fs is nil
	Fs          afero.Fs // Filesystem rooted at the objects directory
	CacheSize   int      // Number of items to cache
	Compression CompressionOptions
	Logger      *zap.Logger
}

// New creates a new Safe instance
func New(opts Options) (*Safe, error) {
	fsys := opts.Fs
	if fsys == nil {
		if opts.Root == "" {
			return nil, errors.Configuration(nil, "content root directory is required")
		}
		if err := os.MkdirAll(opts.Root, 0755); err != nil {
			return nil, errors.Configuration(errors.WithStack(err), "creating content root %s", opts.Root)
		}
		fsys = afero.NewBasePathFs(afero.NewOsFs(), opts.Root)
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, errors.Configuration(err, "creating cache")
	}

	if opts.Compression.Level == 0 {
		opts.Compression.Level = DefaultCompressionOptions().Level
	}
	// The manager is always built so blobs compressed by an earlier
	// configuration stay readable.
	comp, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, errors.Configuration(err, "initializing compression")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Safe{
		fs:     fsys,
		cache:  cache,
		comp:   comp,
		logger: logger.Named("safe"),
	}, nil
}

// Put saves content and returns its hash. Storing identical bytes again
// returns the same hash without writing.
func (s *Safe) Put(content []byte) (string, error) {
	if content == nil {
		content = []byte{} // Convert nil to empty slice
	}

	hash := HashContent(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", err
	}
	if exists {
		metrics.BlobDedups.Inc()
		return hash, nil
	}

	payload := []byte{formatRaw}
	if s.comp.opts.Enabled {
		if packed, ok := s.comp.compress(content); ok {
			payload = append([]byte{formatZstd}, packed...)
		}
	}
	if payload[0] == formatRaw {
		payload = append(payload, content...)
	}

	if err := s.writeAtomic(hash, payload); err != nil {
		return "", errors.IO(err, "writing blob %s", hash)
	}

	metrics.BlobWrites.Inc()
	s.logger.Debug("stored blob",
		zap.String("hash", hash),
		zap.Int("size", len(content)),
		zap.Int("stored", len(payload)))

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, errors.ValidationError("invalid content hash", hash)
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	content, err := s.load(hash)
	if err != nil {
		return nil, err
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, errors.ValidationError("invalid content hash", hash)
	}

	if s.cache.Contains(hash) {
		return true, nil
	}

	_, err := s.fs.Stat(contentPath(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.IO(errors.WithStack(err), "checking blob %s", hash)
}

// Verify re-reads a blob from disk, bypassing the cache, and checks its hash.
func (s *Safe) Verify(hash string) error {
	if !isValidHash(hash) {
		return errors.ValidationError("invalid content hash", hash)
	}
	_, err := s.load(hash)
	return err
}

// Stats walks the objects directory. Temp files from interrupted writes are
// not counted.
func (s *Safe) Stats() (Stats, error) {
	var st Stats
	err := afero.Walk(s.fs, "", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), tmpMarker) {
			return nil
		}
		st.Blobs++
		st.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, errors.IO(errors.WithStack(err), "walking content store")
	}
	return st, nil
}

func (s *Safe) load(hash string) ([]byte, error) {
	raw, err := afero.ReadFile(s.fs, contentPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound("content %s not found", hash)
		}
		return nil, errors.IO(errors.WithStack(err), "reading blob %s", hash)
	}
	if len(raw) == 0 {
		return nil, errors.IO(nil, "blob %s is truncated", hash)
	}

	var content []byte
	switch raw[0] {
	case formatRaw:
		content = raw[1:]
	case formatZstd:
		content, err = s.comp.decompress(raw[1:])
		if err != nil {
			return nil, errors.IO(err, "decompressing blob %s", hash)
		}
	default:
		return nil, errors.IO(nil, "blob %s has unknown format %#x", hash, raw[0])
	}

	if HashContent(content) != hash {
		return nil, errors.IO(nil, "content hash mismatch for %s", hash)
	}
	return content, nil
}

// writeAtomic writes payload to a temp file next to its final name, syncs
// it, and renames it into place so readers never see a partial blob.
func (s *Safe) writeAtomic(hash string, payload []byte) (err error) {
	finalname := contentPath(hash)
	dir := path.Dir(finalname)

	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithStack(err)
	}

	f, err := afero.TempFile(s.fs, dir, hash[2:]+tmpMarker)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		if err != nil {
			_ = f.Close() // Double Close is harmless.
			_ = s.fs.Remove(f.Name())
		}
	}()

	if _, err = f.Write(payload); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Sync(); err != nil && !syncNotSupported(err) {
		return errors.WithStack(err)
	}
	// Close, then rename. Windows doesn't like the reverse order.
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err = s.fs.Rename(f.Name(), finalname); err != nil {
		return errors.WithStack(err)
	}
	if err = s.syncDir(dir); err != nil {
		return errors.WithStack(err)
	}

	// Blobs are immutable; some filesystems refuse chmod, which is fine.
	if cerr := s.fs.Chmod(finalname, 0444); cerr != nil && !os.IsPermission(cerr) {
		s.logger.Debug("chmod blob read-only", zap.String("hash", hash), zap.Error(cerr))
	}
	return nil
}

// syncDir flushes the directory entry of a rename.
func (s *Safe) syncDir(dir string) error {
	d, err := s.fs.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if syncNotSupported(err) {
		err = nil
	}
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

func syncNotSupported(err error) bool {
	return errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOENT)
}

// HashContent returns the SHA-256 hex digest that addresses content.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func contentPath(hash string) string {
	return path.Join(hash[:2], hash[2:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
