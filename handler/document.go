package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Legalphoenix/tabular-review/model"
	"github.com/Legalphoenix/tabular-review/pkg/logger"
	"github.com/Legalphoenix/tabular-review/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type DocumentHandler struct {
	minioService      *service.MinioService
	preprocessService *service.PreprocessService
	store             *service.ReviewStore
}

func NewDocumentHandler(minioSvc *service.MinioService, preprocessSvc *service.PreprocessService) *DocumentHandler {
	return &DocumentHandler{
		minioService:      minioSvc,
		preprocessService: preprocessSvc,
		store:             service.GetReviewStore(),
	}
}

// uploadPDFs streams every part to object storage and returns one entry per
// file, in submission order. Object names are prefixed with a fresh UUID so
// same-named files never collide in the bucket.
func (h *DocumentHandler) uploadPDFs(c *gin.Context, files []*multipart.FileHeader) ([]service.DocumentEntry, error) {
	entries := make([]service.DocumentEntry, len(files))

	g, ctx := errgroup.WithContext(c.Request.Context())
	for i, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", header.Filename, err)
			}
			defer file.Close()

			objectName := fmt.Sprintf("documents/%s/%s", uuid.New().String(), header.Filename)
			if err := h.minioService.UploadFile(ctx, objectName, file, header.Size, "application/pdf"); err != nil {
				return fmt.Errorf("upload %s: %w", header.Filename, err)
			}
			entries[i] = service.DocumentEntry{
				Name:       header.Filename,
				ObjectName: objectName,
				Size:       header.Size,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// objectPrefix is the object's storage directory; every upload gets its own
// UUID directory, so deleting the prefix reclaims the object and anything
// derived from it
func objectPrefix(objectName string) string {
	return path.Dir(objectName) + "/"
}

// removePrefixes deletes whole storage directories in the background.
// Storage cleanup is best effort: the registry is already consistent by the
// time this runs.
func (h *DocumentHandler) removePrefixes(prefixes []string) {
	if h.minioService == nil || len(prefixes) == 0 {
		return
	}
	go func() {
		log := logger.WithContext(context.Background())
		for _, p := range prefixes {
			if err := h.minioService.DeletePrefix(context.Background(), p); err != nil {
				log.Warn("failed to delete storage prefix", "prefix", p, "error", err)
			}
		}
	}()
}

// removeObjects deletes single stored objects in the background, for files
// that never made it into the registry
func (h *DocumentHandler) removeObjects(objectNames []string) {
	if h.minioService == nil || len(objectNames) == 0 {
		return
	}
	go func() {
		log := logger.WithContext(context.Background())
		for _, name := range objectNames {
			if err := h.minioService.DeleteFile(context.Background(), name); err != nil {
				log.Warn("failed to delete stored object", "object", name, "error", err)
			}
		}
	}()
}

// Upload handles a batch of primary document uploads
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	for _, header := range files {
		if strings.ToLower(filepath.Ext(header.Filename)) != ".pdf" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
			return
		}
	}

	entries, err := h.uploadPDFs(c, files)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
		return
	}

	added, rejected := h.store.AddDocuments(entries)

	// Objects uploaded for rejected entries are orphans now
	var orphans []string
	for _, e := range entries {
		for _, name := range rejected {
			if e.Name == name {
				orphans = append(orphans, e.ObjectName)
			}
		}
	}
	h.removeObjects(orphans)

	c.JSON(http.StatusOK, gin.H{
		"added":    added,
		"rejected": rejected,
		"version":  h.store.Version(),
	})
}

// List returns all documents in upload order
func (h *DocumentHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"documents": h.store.Documents(),
		"version":   h.store.Version(),
	})
}

// Get returns a single document
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, ok := h.store.Document(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetStatus returns the preprocessing status of a document
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	doc, ok := h.store.Document(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	resp := gin.H{
		"id":               doc.ID,
		"status":           doc.Status,
		"processing_error": doc.ProcessingError,
	}
	if doc.Status == model.DocStatusReady && doc.Annotated != nil {
		resp["annotated"] = doc.Annotated
	}
	c.JSON(http.StatusOK, resp)
}

// Delete removes a document, its cell row and its stored objects.
// Requires ?confirm=true.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusConflict, gin.H{"error": "Deletion requires confirm=true"})
		return
	}

	doc, ok := h.store.Document(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	if err := h.store.RemoveDocument(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	prefixes := []string{objectPrefix(doc.ObjectName)}
	for _, a := range doc.Appendices {
		prefixes = append(prefixes, objectPrefix(a.ObjectName))
	}
	h.removePrefixes(prefixes)

	c.JSON(http.StatusOK, gin.H{
		"message": "Document deleted",
		"version": h.store.Version(),
	})
}

// AddAppendices attaches uploaded files to a document and re-runs preprocessing
func (h *DocumentHandler) AddAppendices(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.store.Document(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	for _, header := range files {
		if strings.ToLower(filepath.Ext(header.Filename)) != ".pdf" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are allowed"})
			return
		}
	}

	entries, err := h.uploadPDFs(c, files)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file: " + err.Error()})
		return
	}

	appendixEntries := make([]service.AppendixEntry, len(entries))
	for i, e := range entries {
		appendixEntries[i] = service.AppendixEntry(e)
	}

	added, rejected, err := h.store.AddAppendices(id, appendixEntries)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	var orphans []string
	for _, e := range entries {
		for _, name := range rejected {
			if e.Name == name {
				orphans = append(orphans, e.ObjectName)
			}
		}
	}
	h.removeObjects(orphans)

	if len(added) > 0 && h.preprocessService != nil {
		go h.preprocessService.Run(h.store, id)
	}

	c.JSON(http.StatusOK, gin.H{
		"added":    added,
		"rejected": rejected,
		"version":  h.store.Version(),
	})
}

// RemoveAppendix detaches one appendix by display name; byte size breaks ties
// between same-named appendices. Requires ?confirm=true.
func (h *DocumentHandler) RemoveAppendix(c *gin.Context) {
	id := c.Param("id")
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusConflict, gin.H{"error": "Deletion requires confirm=true"})
		return
	}

	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing appendix name"})
		return
	}
	size, _ := strconv.ParseInt(c.Query("size"), 10, 64)

	doc, ok := h.store.Document(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	// Resolve the stored object before the registry forgets it
	var objectName string
	for _, a := range doc.Appendices {
		if a.Name != name {
			continue
		}
		if a.Size == size {
			objectName = a.ObjectName
			break
		}
		if objectName == "" {
			objectName = a.ObjectName
		}
	}

	if err := h.store.RemoveAppendix(id, name, size); err != nil {
		switch err {
		case service.ErrDocumentNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		case service.ErrAppendixNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Appendix not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if objectName != "" {
		h.removePrefixes([]string{objectPrefix(objectName)})
	}
	if h.preprocessService != nil {
		go h.preprocessService.Run(h.store, id)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Appendix removed",
		"version": h.store.Version(),
	})
}

// Preprocess kicks off merge-and-annotate for a document
func (h *DocumentHandler) Preprocess(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.store.Document(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	go h.preprocessService.Run(h.store, id)

	c.JSON(http.StatusAccepted, gin.H{
		"id":     id,
		"status": model.DocStatusProcessing,
	})
}
