package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// EnableEncryption encrypts every data file under the base directory with
// the given password. On failure already-encrypted files are restored.
func (s *Storage) EnableEncryption(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encrypted {
		return ErrAlreadyEncrypted
	}
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}

	recipient, err := s.newRecipient(password)
	if err != nil {
		return err
	}
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	verifyPath := filepath.Join(s.baseDir, verifyFile)
	sealed, err := encryptData([]byte(verifyMagic), recipient)
	if err != nil {
		return fmt.Errorf("failed to encrypt verification file: %w", err)
	}
	if err := os.WriteFile(verifyPath, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write verification file: %w", err)
	}

	files, err := s.collect(func(path string, _ []byte) bool { return IsDataFile(path) })
	if err != nil {
		os.Remove(verifyPath)
		return fmt.Errorf("failed to scan files: %w", err)
	}

	for i, path := range files {
		if err := transformFile(path, func(data []byte) ([]byte, error) {
			if isAgeEncrypted(data) {
				return nil, nil
			}
			return encryptData(data, recipient)
		}); err != nil {
			s.rollback(files[:i], identity)
			os.Remove(verifyPath)
			return fmt.Errorf("failed to encrypt %s: %w", filepath.Base(path), err)
		}
	}

	if err := os.WriteFile(filepath.Join(s.baseDir, markerFile), []byte("encrypted"), 0644); err != nil {
		return fmt.Errorf("failed to create marker file: %w", err)
	}

	s.encrypted = true
	s.identity = identity
	s.recipient = recipient
	s.log.Info("encryption enabled", "dir", s.baseDir, "files", len(files))
	return nil
}

// DisableEncryption decrypts all encrypted files; it needs the current
// password.
func (s *Storage) DisableEncryption(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return ErrNotEncrypted
	}

	identity, err := s.verify(password)
	if err != nil {
		return err
	}

	files, err := s.collect(func(_ string, head []byte) bool { return isAgeEncrypted(head) })
	if err != nil {
		return fmt.Errorf("failed to scan files: %w", err)
	}

	for _, path := range files {
		if err := transformFile(path, func(data []byte) ([]byte, error) {
			if !isAgeEncrypted(data) {
				return nil, nil
			}
			return decryptData(data, identity)
		}); err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", filepath.Base(path), err)
		}
	}

	os.Remove(filepath.Join(s.baseDir, markerFile))
	os.Remove(filepath.Join(s.baseDir, verifyFile))

	s.encrypted = false
	s.identity = nil
	s.recipient = nil
	s.log.Info("encryption disabled", "dir", s.baseDir, "files", len(files))
	return nil
}

// collect walks the base directory and returns the files accepted by keep,
// skipping the marker and verification files. head holds the first bytes
// of the file.
func (s *Storage) collect(keep func(path string, head []byte) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if base := d.Name(); base == markerFile || base == verifyFile {
			return nil
		}

		head, err := readHead(path, len(ageHeader)+1)
		if err != nil {
			s.log.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if keep(path, head) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	m, err := f.Read(buf)
	if err != nil && m == 0 && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:m], nil
}

// transformFile rewrites path in place with fn's output. A nil result
// leaves the file untouched.
func transformFile(path string, fn func([]byte) ([]byte, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	out, err := fn(data)
	if err != nil || out == nil {
		return err
	}
	return atomicWrite(path, out, info.Mode().Perm())
}

// rollback decrypts files that were encrypted before a failed migration.
func (s *Storage) rollback(files []string, identity *age.ScryptIdentity) {
	for _, path := range files {
		err := transformFile(path, func(data []byte) ([]byte, error) {
			if !isAgeEncrypted(data) {
				return nil, nil
			}
			return decryptData(data, identity)
		})
		if err != nil {
			s.log.Error("rollback failed", "path", path, "error", err)
		}
	}
}
