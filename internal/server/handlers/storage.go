package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/pkg/match"
	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"
)

// Request headers read by UploadFile.
const (
	HeaderACL        = "X-Cloudkit-Acl"
	HeaderSSE        = "X-Cloudkit-Server-Side-Encryption"
	HeaderQueueSize  = "X-Cloudkit-Queue-Size"
	HeaderPartSize   = "X-Cloudkit-Part-Size"
	HeaderDeleteMark = "X-Cloudkit-Delete-Marker"
)

// StorageHandler exposes a storage.Client over HTTP.
type StorageHandler struct {
	client storage.Client
	logger *zap.Logger
}

// NewStorageHandler wraps client. A nil logger discards output.
func NewStorageHandler(client storage.Client, logger *zap.Logger) *StorageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageHandler{client: client, logger: logger}
}

// Routes mounts the handler's endpoints on r.
func (h *StorageHandler) Routes(r chi.Router) {
	r.Get("/containers", h.ListContainers)
	r.Route("/containers/{container}", func(r chi.Router) {
		r.Get("/", h.GetContainer)
		r.Put("/", h.CreateContainer)
		r.Delete("/", h.DestroyContainer)

		r.Get("/files", h.ListFiles)
		r.Get("/files/*", h.DownloadFile)
		r.Head("/files/*", h.StatFile)
		r.Put("/files/*", h.UploadFile)
		r.Delete("/files/*", h.RemoveFile)

		r.Get("/metadata/*", h.GetFile)
		r.Get("/signed-url/*", h.SignURL)
	})
}

// CheckHealth lists containers to verify the provider is reachable.
func (h *StorageHandler) CheckHealth(ctx context.Context) error {
	_, err := h.client.GetContainers(ctx)
	return err
}

// ContainerList is the body of ListContainers.
type ContainerList struct {
	Provider   string                    `json:"provider"`
	Containers []*output.ContainerRecord `json:"containers"`
}

// ContainerDetail is the body of GetContainer.
type ContainerDetail struct {
	Container *output.ContainerRecord `json:"container"`
	Files     []*output.FileRecord    `json:"files"`
}

// FileList is the body of ListFiles.
type FileList struct {
	Container string               `json:"container"`
	Files     []*output.FileRecord `json:"files"`
	Page      storage.Page         `json:"page"`
}

// RemoveResult is the body of RemoveFile.
type RemoveResult struct {
	Container    string `json:"container"`
	Name         string `json:"name"`
	DeleteMarker bool   `json:"delete_marker"`
}

// ListContainers handles GET /containers.
func (h *StorageHandler) ListContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.client.GetContainers(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	body := ContainerList{
		Provider:   h.client.Provider().String(),
		Containers: make([]*output.ContainerRecord, 0, len(containers)),
	}
	for _, c := range containers {
		body.Containers = append(body.Containers, output.NewContainerRecord(c))
	}
	writeJSON(w, http.StatusOK, body)
}

// GetContainer handles GET /containers/{container}.
func (h *StorageHandler) GetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := h.client.GetContainer(r.Context(), containerParam(r))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContainerDetail{
		Container: output.NewContainerRecord(c),
		Files:     fileRecords(c.Files),
	})
}

// CreateContainer handles PUT /containers/{container}.
func (h *StorageHandler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	c, err := h.client.CreateContainer(r.Context(), containerParam(r))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	h.logger.Info("container created", zap.String("container", c.Name))
	writeJSON(w, http.StatusCreated, output.NewContainerRecord(c))
}

// DestroyContainer handles DELETE /containers/{container}.
func (h *StorageHandler) DestroyContainer(w http.ResponseWriter, r *http.Request) {
	ref := containerParam(r)
	if err := h.client.DestroyContainer(r.Context(), ref); err != nil {
		respondWithError(w, r, err)
		return
	}
	h.logger.Info("container destroyed", zap.String("container", ref.Name()))
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /containers/{container}/files. Query parameters:
// prefix, marker, max_keys and match (a glob applied to the returned page).
func (h *StorageHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{Prefix: q.Get("prefix"), Marker: q.Get("marker")}
	if v := q.Get("max_keys"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > storage.MaxPageSize {
			respondWithError(w, r, apperrors.InvalidArgument(
				fmt.Sprintf("max_keys: must be an integer between 0 and %d", storage.MaxPageSize)))
			return
		}
		opts.MaxKeys = n
	}

	var matcher *match.Matcher
	if pattern := q.Get("match"); pattern != "" {
		var err error
		matcher, err = match.New(match.Config{Includes: []string{pattern}, IncludeHidden: true})
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		if opts.Prefix == "" {
			opts.Prefix = matcher.Prefix()
		}
	}

	ref := containerParam(r)
	res, err := h.client.GetFiles(r.Context(), ref, opts)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	files := res.Files
	if matcher != nil {
		files = matcher.Select(files)
	}
	writeJSON(w, http.StatusOK, FileList{Container: ref.Name(), Files: fileRecords(files), Page: res.Page})
}

// GetFile handles GET /containers/{container}/metadata/{file}.
func (h *StorageHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.client.GetFile(r.Context(), containerParam(r), chi.URLParam(r, "*"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output.NewFileRecord(f))
}

// StatFile handles HEAD /containers/{container}/files/{file}.
func (h *StorageHandler) StatFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.client.GetFile(r.Context(), containerParam(r), chi.URLParam(r, "*"))
	if err != nil {
		code, status := apperrors.Classify(err)
		w.Header().Set("X-Cloudkit-Error", code)
		w.WriteHeader(status)
		return
	}
	setFileHeaders(w.Header(), f)
	w.WriteHeader(http.StatusOK)
}

// DownloadFile handles GET /containers/{container}/files/{file}. The body is
// streamed with the same metadata headers as HEAD.
func (h *StorageHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	container, name := containerParam(r), chi.URLParam(r, "*")
	f, err := h.client.GetFile(r.Context(), container, name)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	body, err := h.client.Download(r.Context(), storage.DownloadOptions{
		Container: container,
		Remote:    f.Ref(),
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	setFileHeaders(w.Header(), f)
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, body)
	if err != nil {
		// Headers are gone; the client sees a truncated body.
		h.logger.Warn("download interrupted",
			zap.String("container", container.Name()),
			zap.String("file", name),
			zap.Int64("bytes", n),
			zap.Error(err))
	}
}

// UploadFile handles PUT /containers/{container}/files/{file}. The request
// body is streamed into a managed upload.
func (h *StorageHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	opts := storage.UploadOptions{
		Container:            containerParam(r),
		Remote:               storage.FileNamed(chi.URLParam(r, "*")),
		ContentType:          r.Header.Get("Content-Type"),
		ContentEncoding:      r.Header.Get("Content-Encoding"),
		CacheControl:         r.Header.Get("Cache-Control"),
		ACL:                  r.Header.Get(HeaderACL),
		ServerSideEncryption: r.Header.Get(HeaderSSE),
	}
	var err error
	if opts.QueueSize, err = intHeader(r, HeaderQueueSize); err != nil {
		respondWithError(w, r, err)
		return
	}
	partSize, err := intHeader(r, HeaderPartSize)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	opts.PartSize = int64(partSize)

	start := time.Now()
	up := h.client.Upload(r.Context(), opts)
	if _, err := io.Copy(up, r.Body); err != nil {
		_ = up.CloseWithError(err)
	} else {
		_ = up.Close()
	}

	f, err := up.Wait()
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	h.logger.Info("file uploaded",
		zap.String("container", f.ContainerName()),
		zap.String("file", f.Name),
		zap.Duration("duration", time.Since(start)))
	writeJSON(w, http.StatusCreated, output.NewFileRecord(f))
}

// RemoveFile handles DELETE /containers/{container}/files/{file}.
func (h *StorageHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	container, name := containerParam(r), chi.URLParam(r, "*")
	marker, err := h.client.RemoveFile(r.Context(), container, storage.FileNamed(name))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set(HeaderDeleteMark, strconv.FormatBool(marker))
	writeJSON(w, http.StatusOK, RemoveResult{Container: container.Name(), Name: name, DeleteMarker: marker})
}

// SignURL handles GET /containers/{container}/signed-url/{file}.
func (h *StorageHandler) SignURL(w http.ResponseWriter, r *http.Request) {
	signer, ok := h.client.(storage.URLSigner)
	if !ok {
		respondWithError(w, r, fmt.Errorf("%s: %w", h.client.Provider(), storage.ErrSignedURLDisabled))
		return
	}

	container, name := containerParam(r), chi.URLParam(r, "*")
	u, err := signer.SignedURL(r.Context(), container, storage.FileNamed(name))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, output.SignedURLRecord{Container: container.Name(), Name: name, URL: u})
}

func containerParam(r *http.Request) storage.ContainerRef {
	return storage.ContainerNamed(chi.URLParam(r, "container"))
}

func intHeader(r *http.Request, name string) (int, error) {
	v := r.Header.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidArgument(name + ": must be a non-negative integer")
	}
	return n, nil
}

func fileRecords(files []*storage.File) []*output.FileRecord {
	recs := make([]*output.FileRecord, 0, len(files))
	for _, f := range files {
		recs = append(recs, output.NewFileRecord(f))
	}
	return recs
}

func setFileHeaders(h http.Header, f *storage.File) {
	h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
	if f.ContentType != "" {
		h.Set("Content-Type", f.ContentType)
	}
	if f.ContentEncoding != "" {
		h.Set("Content-Encoding", f.ContentEncoding)
	}
	if f.CacheControl != "" {
		h.Set("Cache-Control", f.CacheControl)
	}
	if f.ETag != "" {
		h.Set("ETag", `"`+f.ETag+`"`)
	}
	if !f.LastModified.IsZero() {
		h.Set("Last-Modified", f.LastModified.UTC().Format(http.TimeFormat))
	}
}
