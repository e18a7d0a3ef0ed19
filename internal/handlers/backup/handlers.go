// Package backup downloads and restores the data directory as a zip of
// plaintext exports.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apphttp "salesviz/internal/http"
	"salesviz/internal/services/storage"
)

// maxRestoreSize caps uploaded backups.
const maxRestoreSize = 50 << 20

var (
	store     *storage.Storage
	onRestore func(ctx context.Context) error
)

// Initialize sets up the backup package. restored, if non-nil, runs after
// a successful restore so the new files are picked up.
func Initialize(s *storage.Storage, restored func(ctx context.Context) error) {
	store = s
	onRestore = restored
}

// RegisterRoutes registers the backup routes
func RegisterRoutes(r chi.Router) {
	r.Get("/api/backup", HandleBackup)
	r.Post("/api/restore", HandleRestore)
}

// HandleBackup streams every data file, decrypted, as a zip download.
func HandleBackup(w http.ResponseWriter, r *http.Request) {
	entries, err := store.List()
	if err != nil {
		apphttp.ErrorResponse(w, r, "error listing data files: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if store.IsEncrypted() && !store.IsUnlocked() {
		apphttp.ErrorResponse(w, r, storage.ErrLocked.Error(), http.StatusForbidden)
		return
	}

	filename := fmt.Sprintf("salesviz_backup_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, e := range entries {
		if err := addFile(zw, e); err != nil {
			// Headers are already sent; the truncated archive will fail to open.
			slog.ErrorContext(r.Context(), "error creating backup", "file", e.Name, "error", err)
			return
		}
	}
	slog.InfoContext(r.Context(), "backup created", "files", len(entries))
}

func addFile(zw *zip.Writer, e storage.Entry) error {
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	})
	if err != nil {
		return err
	}

	src, err := store.Open(e.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(f, src)
	return err
}

// HandleRestore writes the data files of an uploaded zip into the data
// directory, encrypting them if the directory is encrypted.
func HandleRestore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRestoreSize); err != nil {
		apphttp.ErrorResponse(w, r, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		apphttp.ErrorResponse(w, r, "Only ZIP backup files are allowed", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		apphttp.ErrorResponse(w, r, "Error reading file", http.StatusInternalServerError)
		return
	}

	restored, err := Restore(content)
	if err != nil {
		apphttp.ErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	if onRestore != nil {
		if err := onRestore(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "reload after restore failed", "error", err)
		}
	}

	fmt.Fprintf(w, "Restored %d files", restored)
}

// Restore extracts the data files of a zip archive into the data directory
// and returns how many were written.
func Restore(content []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid ZIP file: %w", err)
	}

	restored := 0
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !storage.IsDataFile(zf.Name) {
			continue
		}

		// Only the base name is used, so entries cannot escape the directory.
		name := filepath.Base(zf.Name)
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			slog.Warn("skipping zip entry", "entry", zf.Name, "error", err)
			continue
		}
		if err := store.WriteFile(name, data, 0644); err != nil {
			return restored, fmt.Errorf("error writing %s: %w", name, err)
		}
		restored++
		slog.Info("restored file", "file", name)
	}

	if restored == 0 {
		return 0, fmt.Errorf("no data files (%s) found in backup", strings.Join(storage.DataExtensions, ", "))
	}
	return restored, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
