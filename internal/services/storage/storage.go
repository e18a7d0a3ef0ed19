// Package storage gives the loader transparent access to sales exports that
// may be age-encrypted at rest.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
)

const (
	// ageHeader is the prefix of age-encrypted files
	ageHeader = "age-encryption.org"

	// markerFile indicates encryption is enabled
	markerFile = ".encrypted"

	// verifyFile is used to validate the password
	verifyFile = ".encryption-verify"

	verifyMagic = `{"magic":"salesviz-encryption-verify","version":1}`

	minPasswordLen = 8
)

var (
	ErrLocked            = errors.New("storage is locked")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAlreadyEncrypted  = errors.New("encryption is already enabled")
	ErrNotEncrypted      = errors.New("encryption is not enabled")
	ErrWeakPassword      = fmt.Errorf("password must be at least %d characters", minPasswordLen)
)

// DataExtensions lists the export formats the loader understands. Only
// these files are encrypted when encryption is enabled.
var DataExtensions = []string{".csv", ".xlsx"}

// IsDataFile reports whether path has one of DataExtensions.
func IsDataFile(path string) bool {
	return slices.Contains(DataExtensions, strings.ToLower(filepath.Ext(path)))
}

// Entry describes one data file in the store.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage provides transparent encrypted/unencrypted file access
type Storage struct {
	baseDir    string
	encrypted  bool
	identity   *age.ScryptIdentity
	recipient  *age.ScryptRecipient
	workFactor int
	log        *slog.Logger
	mu         sync.RWMutex
}

// Option configures a Storage.
type Option func(*Storage)

// WithWorkFactor sets the scrypt work factor (log2 N) for new encryptions.
// Zero keeps the age default.
func WithWorkFactor(logN int) Option {
	return func(s *Storage) { s.workFactor = logN }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) { s.log = l }
}

// New creates a new Storage instance for the given base directory
func New(baseDir string, opts ...Option) (*Storage, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", baseDir)
	}

	s := &Storage{baseDir: baseDir, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	if _, err := os.Stat(filepath.Join(baseDir, markerFile)); err == nil {
		s.encrypted = true
	}
	s.log.Debug("storage opened", "dir", baseDir, "encrypted", s.encrypted)
	return s, nil
}

// IsEncrypted returns true if the data directory is encrypted
func (s *Storage) IsEncrypted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encrypted
}

// IsUnlocked returns true if the directory is plain or has been unlocked.
func (s *Storage) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.encrypted || s.identity != nil
}

// Unlock verifies the password and keeps the key in memory.
func (s *Storage) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return nil
	}

	identity, err := s.verify(password)
	if err != nil {
		return err
	}
	recipient, err := s.newRecipient(password)
	if err != nil {
		return err
	}

	s.identity = identity
	s.recipient = recipient
	s.log.Info("storage unlocked", "dir", s.baseDir)
	return nil
}

// Lock clears the encryption key from memory
func (s *Storage) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	s.recipient = nil
}

// verify checks password against the verification file. Callers hold mu.
func (s *Storage) verify(password string) (*age.ScryptIdentity, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	sealed, err := os.ReadFile(filepath.Join(s.baseDir, verifyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read verification file: %w", err)
	}

	plain, err := decryptData(sealed, identity)
	if err != nil || string(plain) != verifyMagic {
		return nil, ErrIncorrectPassword
	}
	return identity, nil
}

func (s *Storage) newRecipient(password string) (*age.ScryptRecipient, error) {
	r, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipient: %w", err)
	}
	if s.workFactor > 0 {
		r.SetWorkFactor(s.workFactor)
	}
	return r, nil
}

// ReadFile reads and, if needed, decrypts a file
func (s *Storage) ReadFile(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.resolve(path))
	if err != nil {
		return nil, err
	}

	if isAgeEncrypted(data) {
		if s.identity == nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrLocked)
		}
		return decryptData(data, s.identity)
	}

	return data, nil
}

// Open returns a reader over the decrypted contents of path.
func (s *Storage) Open(path string) (io.ReadCloser, error) {
	data, err := s.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// WriteFile writes a file, encrypting data files when encryption is on.
func (s *Storage) WriteFile(path string, data []byte, perm os.FileMode) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path = s.resolve(path)
	if s.encrypted && IsDataFile(path) {
		if s.recipient == nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrLocked)
		}
		sealed, err := encryptData(data, s.recipient)
		if err != nil {
			return fmt.Errorf("failed to encrypt: %w", err)
		}
		data = sealed
	}

	return atomicWrite(path, data, perm)
}

// List returns the data files directly under the base directory, newest
// first.
func (s *Storage) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsDataFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(s.baseDir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	slices.SortFunc(out, func(a, b Entry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Stat returns file info for a path relative to the base directory.
func (s *Storage) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(s.resolve(path))
}

// Remove removes a file
func (s *Storage) Remove(path string) error {
	return os.Remove(s.resolve(path))
}

// resolve anchors relative paths at the base directory.
func (s *Storage) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, path)
}

// atomicWrite writes data to a file atomically using a temp file
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// isAgeEncrypted checks if data starts with the age header
func isAgeEncrypted(data []byte) bool {
	return len(data) > len(ageHeader) && string(data[:len(ageHeader)]) == ageHeader
}

func encryptData(data []byte, recipient age.Recipient) ([]byte, error) {
	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decryptData(data []byte, identity age.Identity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
