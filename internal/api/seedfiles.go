package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkorder/internal/seed"
	"github.com/starford/linkorder/internal/storage"
)

const maxSeedUploadBytes = 5 << 20 // 5 MB

// SeedFileHandler lists, serves and accepts seed documents.
type SeedFileHandler struct {
	importer *seed.Importer
	root     string
}

// NewSeedFileHandler creates a handler over the importer's seed directory.
func NewSeedFileHandler(importer *seed.Importer) *SeedFileHandler {
	return &SeedFileHandler{importer: importer, root: importer.Files().Root()}
}

// safeName validates that the filename is a plain seed file name (no path
// separators, no traversal) and returns its absolute path in the seed dir.
func (h *SeedFileHandler) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !storage.IsSeedFile(cleaned) {
		return "", fmt.Errorf("seed files must be .yaml or .yml: %s", name)
	}
	abs := filepath.Join(h.root, cleaned)
	if !strings.HasPrefix(abs, h.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes seed directory")
	}
	return abs, nil
}

// List handles GET /api/seed-files.
func (h *SeedFileHandler) List(w http.ResponseWriter, _ *http.Request) {
	files, err := h.importer.Files().List("")
	if err != nil {
		writeError(w, "list seed files", err)
		return
	}
	out := make([]SeedFile, len(files))
	for i, f := range files {
		out[i] = SeedFile{Path: f.Path, Checksum: f.Checksum}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

// ServeFile handles GET /api/seed-files/{filename}.
func (h *SeedFileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/seed-files (multipart/form-data, field "file").
// The document is validated before it is written, then imported at once.
//
//	@Summary		Upload and import a seed document
//	@Tags			seed
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"YAML seed document"
//	@Success		201		{object}	SeedUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/seed-files [post]
func (h *SeedFileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSeedUploadBytes)

	if err := r.ParseMultipartForm(maxSeedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	abs, err := h.safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if _, err := seed.Parse(data); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := os.WriteFile(abs, data, 0o644); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	name := filepath.Base(abs)
	res, err := h.importer.ImportFile(r.Context(), name)
	if err != nil {
		writeError(w, "import seed file", err)
		return
	}

	writeJSON(w, http.StatusCreated, SeedUploadResponse{
		Filename: name,
		Size:     int64(len(data)),
		Result:   res,
	})
}
