package charts

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	apphttp "salesviz/internal/http"
	"salesviz/internal/services/dataloader"
	"salesviz/internal/services/storage"
)

// MaxUploadSize bounds an uploaded export.
const MaxUploadSize = 50 << 20

func handleFileList(w http.ResponseWriter, r *http.Request) {
	files, err := deps.Loader.ListFiles()
	if err != nil {
		apphttp.JSONError(w, r, loadMessage(err), http.StatusServiceUnavailable)
		return
	}
	apphttp.JSON(w, r, http.StatusOK, files)
}

func handleFilesPage(w http.ResponseWriter, r *http.Request) {
	data := pageData("Tệp dữ liệu", "")
	data["Locked"] = deps.Store.IsEncrypted() && !deps.Store.IsUnlocked()

	files, err := deps.Loader.ListFiles()
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, loadMessage(err))
		return
	}
	data["Files"] = files

	if ds, ok := deps.Handle.Current(); ok {
		data["Summary"] = cache.summarize(ds)
	}
	apphttp.RenderTemplate(w, deps.Renderer, "files.html", data)
}

// fileError answers with a page for browser forms and JSON otherwise.
func fileError(w http.ResponseWriter, r *http.Request, msg string, status int) {
	if apphttp.WantsHTML(r) {
		renderError(w, r, status, msg)
		return
	}
	apphttp.JSONError(w, r, msg, status)
}

// filesChanged reloads the dataset after the directory changed and answers
// with the new file list, or a redirect to the files page for forms.
func filesChanged(w http.ResponseWriter, r *http.Request, status int) {
	if _, err := deps.Handle.Reload(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "reload after file change failed", "error", err)
	}

	if apphttp.WantsHTML(r) {
		http.Redirect(w, r, "/files", http.StatusSeeOther)
		return
	}
	files, err := deps.Loader.ListFiles()
	if err != nil {
		apphttp.JSONError(w, r, loadMessage(err), http.StatusServiceUnavailable)
		return
	}
	apphttp.JSON(w, r, status, files)
}

func handleFileUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		fileError(w, r, "Tệp quá lớn hoặc biểu mẫu không hợp lệ.", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		fileError(w, r, "Thiếu tệp tải lên.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !storage.IsDataFile(name) || strings.HasPrefix(name, ".") {
		fileError(w, r, "Chỉ chấp nhận tệp .csv hoặc .xlsx.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		fileError(w, r, "Không đọc được tệp tải lên.", http.StatusBadRequest)
		return
	}
	if _, _, err := dataloader.Parse(name, data); err != nil {
		fileError(w, r, "Không đọc được "+name+": "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := deps.Store.WriteFile(name, data, 0644); err != nil {
		if errors.Is(err, storage.ErrLocked) {
			fileError(w, r, loadMessage(err), http.StatusForbidden)
			return
		}
		fileError(w, r, "Lỗi lưu tệp: "+err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "file uploaded", "file", name, "bytes", len(data))
	filesChanged(w, r, http.StatusCreated)
}

func handleFileDelete(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		fileError(w, r, "Tên tệp không hợp lệ.", http.StatusBadRequest)
		return
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !storage.IsDataFile(name) {
		fileError(w, r, "Tên tệp không hợp lệ.", http.StatusBadRequest)
		return
	}

	if _, err := deps.Store.Stat(name); errors.Is(err, fs.ErrNotExist) {
		fileError(w, r, "Không tìm thấy tệp "+name+".", http.StatusNotFound)
		return
	}
	if err := deps.Store.Remove(name); err != nil {
		fileError(w, r, "Lỗi xoá tệp: "+err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "file deleted", "file", name)
	filesChanged(w, r, http.StatusOK)
}
