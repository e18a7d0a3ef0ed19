package templates

import (
	"bufio"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"salesviz/internal/services/format"
)

//go:embed files
var embedded embed.FS

// Files returns the built-in templates rooted at their top directory.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "files")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer handles template rendering
type Renderer struct {
	mu        sync.RWMutex
	templates *template.Template
	debug     bool
	files     fs.FS
}

// New creates a renderer over files, which holds layouts/, pages/ and
// partials/. In debug mode templates are re-parsed on every render.
func New(files fs.FS, debug bool) (*Renderer, error) {
	r := &Renderer{
		debug: debug,
		files: files,
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

// getFuncMap returns the template function map
func getFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatVND":      format.VND,
		"formatMillions": format.Millions,
		"formatPercent":  format.Percent,
		"formatInt":      formatInt,
		"formatChange":   formatChange,
		"formatBytes":    formatBytes,
		"formatDate":     formatDate,
		"formatDateTime": formatDateTime,
		"truncate":       format.Truncate,
		"add":            add,
		"seq":            seq,
		"dict":           dict,
		"json":           jsonMarshal,
		"lower":          strings.ToLower,
		"join":           strings.Join,
		"colorClass":     colorClass,
		"deref":          deref,
	}
}

// loadTemplates parses all templates with strict validation
func (r *Renderer) loadTemplates() error {
	tmpl := template.New("").Funcs(getFuncMap())

	var templateFiles []string
	for _, subdir := range []string{"layouts", "pages", "partials"} {
		matches, err := fs.Glob(r.files, path.Join(subdir, "*.html"))
		if err != nil {
			return fmt.Errorf("error globbing %s: %w", subdir, err)
		}
		templateFiles = append(templateFiles, matches...)
	}

	if len(templateFiles) == 0 {
		return fmt.Errorf("no template files found")
	}

	// Parse each template file individually for better error reporting
	var parseErrors []string
	for _, file := range templateFiles {
		content, err := fs.ReadFile(r.files, file)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Sprintf("  %s: failed to read: %v", file, err))
			continue
		}

		if _, err := tmpl.New(path.Base(file)).Parse(string(content)); err != nil {
			parseErrors = append(parseErrors, formatTemplateError(file, string(content), err))
		}
	}

	if len(parseErrors) > 0 {
		for _, e := range parseErrors {
			slog.Error("template parse error", "detail", e)
		}
		return fmt.Errorf("template parsing failed with %d error(s)", len(parseErrors))
	}

	if err := r.validateTemplateReferences(tmpl, templateFiles); err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()
	slog.Debug("templates loaded", "files", len(templateFiles))
	return nil
}

// formatTemplateError formats a template error with file context
func formatTemplateError(file, content string, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n  File: %s\n", file)

	errStr := err.Error()
	lineNum := extractLineNumber(errStr)

	if lineNum > 0 {
		fmt.Fprintf(&sb, "  Line: %d\n", lineNum)
		fmt.Fprintf(&sb, "  Error: %s\n", errStr)
		sb.WriteString("  Context:\n")

		lines := strings.Split(content, "\n")
		start := max(lineNum-3, 0)
		end := min(lineNum+2, len(lines))

		for i := start; i < end; i++ {
			marker := "   "
			if i+1 == lineNum {
				marker = ">>>"
			}
			fmt.Fprintf(&sb, "    %s %4d | %s\n", marker, i+1, lines[i])
		}
	} else {
		fmt.Fprintf(&sb, "  Error: %s\n", errStr)
	}

	return sb.String()
}

var lineNumberRe = regexp.MustCompile(`:(\d+):`)

// extractLineNumber tries to extract a line number from a template error
func extractLineNumber(errStr string) int {
	matches := lineNumberRe.FindStringSubmatch(errStr)
	if len(matches) >= 2 {
		var lineNum int
		fmt.Sscanf(matches[1], "%d", &lineNum)
		return lineNum
	}
	return 0
}

var templateCallRe = regexp.MustCompile(`\{\{\s*template\s+"([^"]+)"`)

// validateTemplateReferences checks that all {{template "name"}} calls reference defined templates
func (r *Renderer) validateTemplateReferences(tmpl *template.Template, files []string) error {
	defined := make(map[string]bool)
	for _, t := range tmpl.Templates() {
		if t.Name() != "" {
			defined[t.Name()] = true
		}
	}

	var refErrors []string
	for _, file := range files {
		content, err := fs.ReadFile(r.files, file)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(strings.NewReader(string(content)))
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			for _, match := range templateCallRe.FindAllStringSubmatch(line, -1) {
				if !defined[match[1]] {
					refErrors = append(refErrors, fmt.Sprintf("%s:%d: undefined template %q", file, lineNum, match[1]))
				}
			}
		}
	}

	if len(refErrors) > 0 {
		for _, e := range refErrors {
			slog.Error("undefined template reference", "detail", e)
		}
		return fmt.Errorf("found %d undefined template reference(s): %s", len(refErrors), strings.Join(refErrors, "; "))
	}
	return nil
}

func (r *Renderer) current() *template.Template {
	if r.debug {
		if err := r.loadTemplates(); err != nil {
			slog.Error("error reloading templates", "error", err)
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates
}

// Render renders a page template with status 200.
func (r *Renderer) Render(w http.ResponseWriter, name string, data any) error {
	return r.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders a page template. The page is buffered so a failing
// template never sends a half-written response.
func (r *Renderer) RenderStatus(w http.ResponseWriter, status int, name string, data any) error {
	var buf strings.Builder
	if err := r.current().ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("error rendering template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := io.WriteString(w, buf.String())
	return err
}

// RenderToString renders a template to a string
func (r *Renderer) RenderToString(name string, data any) (string, error) {
	var buf strings.Builder
	if err := r.current().ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Template functions

func formatInt(v any) string {
	return format.Int(toFloat(v))
}

// formatChange shows a signed percent: 12.34 -> "+12.3%".
func formatChange(v float64) string {
	if v > 0 {
		return "+" + format.Percent(v/100)
	}
	return format.Percent(v / 100)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

func add(a, b any) any {
	// If both are ints, return int to preserve type for comparisons
	if ai, ok := a.(int); ok {
		if bi, ok := b.(int); ok {
			return ai + bi
		}
	}
	return toFloat(a) + toFloat(b)
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	default:
		return 0
	}
}

// seq generates a sequence of integers
func seq(start, end int) []int {
	if end < start {
		return nil
	}
	result := make([]int, end-start+1)
	for i := range result {
		result[i] = start + i
	}
	return result
}

// dict creates a map from key-value pairs
func dict(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	result := make(map[string]any)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		result[key] = values[i+1]
	}
	return result
}

func jsonMarshal(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(b)
}

func colorClass(v float64) string {
	switch {
	case v > 0:
		return "pos"
	case v < 0:
		return "neg"
	}
	return "muted"
}

// deref safely dereferences a pointer, returning 0 if nil
func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
