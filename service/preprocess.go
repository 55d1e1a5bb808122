package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/Legalphoenix/tabular-review/config"
	"github.com/Legalphoenix/tabular-review/model"
	"github.com/Legalphoenix/tabular-review/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ObjectFetcher stages a stored object into a local file
type ObjectFetcher interface {
	FetchToFile(ctx context.Context, objectName string) (string, func() error, error)
}

// PreprocessService calls the remote preprocessing collaborator, which merges
// a primary file with its appendices into a single page-annotated PDF and
// returns the manifest mapping annotated pages back to the original files.
type PreprocessService struct {
	config     *config.ServicesConfig
	files      ObjectFetcher
	httpClient *http.Client
}

// PreprocessResponse is the preprocessing response envelope
type PreprocessResponse struct {
	AnnotatedPath         string               `json:"annotated_path"`
	SectionsPerPage       int                  `json:"sections_per_page"`
	OriginalFilesManifest []model.ManifestFile `json:"original_files_manifest"`
	Error                 string               `json:"error,omitempty"`
}

func NewPreprocessService(cfg *config.ServicesConfig, files ObjectFetcher) *PreprocessService {
	return &PreprocessService{
		config: cfg,
		files:  files,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Run preprocesses one document and stores the outcome. Fire-and-forget:
// callers launch it in a goroutine; a result arriving after the document was
// removed is dropped by the store.
func (s *PreprocessService) Run(store *ReviewStore, docID string) {
	log := logger.WithContext(context.Background()).With("document_id", docID)

	doc, ok := store.Document(docID)
	if !ok {
		log.Debug("skipping preprocessing for removed document")
		return
	}

	if err := store.MarkProcessing(docID); err != nil {
		log.Debug("skipping preprocessing", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutSeconds)*time.Second)
	defer cancel()

	details, err := s.preprocess(ctx, doc)
	if err != nil {
		log.Warn("preprocessing failed", "error", err)
		store.SetPreprocessingError(docID, err.Error())
		return
	}

	log.Info("preprocessing finished",
		"annotated_path", details.AnnotatedPath,
		"total_pages", details.TotalPages(),
		"sections_per_page", details.SectionsPerPage,
	)
	store.SetPreprocessingResult(docID, details)
}

// preprocess stages the primary file and appendices into temp files
// concurrently, then streams them to the collaborator as one multipart
// request. Part filenames carry the object names so the returned manifest
// paths resolve back to stored objects.
func (s *PreprocessService) preprocess(ctx context.Context, doc *model.Document) (*model.AnnotatedDocumentDetails, error) {
	type staged struct {
		field  string
		object string
		path   string
	}

	files := make([]staged, 0, 1+len(doc.Appendices))
	files = append(files, staged{field: "file", object: doc.ObjectName})
	for _, a := range doc.Appendices {
		files = append(files, staged{field: "appendices", object: a.ObjectName})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		g.Go(func() error {
			path, _, err := s.files.FetchToFile(gctx, files[i].object)
			if err != nil {
				return err
			}
			files[i].path = path
			return nil
		})
	}
	err := g.Wait()
	defer func() {
		for _, f := range files {
			if f.path != "" {
				os.Remove(f.path)
			}
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to stage files: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.object)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		src, err := os.Open(f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read staged file: %w", err)
		}
		_, err = io.Copy(part, src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.PreprocessURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach preprocessing service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result PreprocessResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Error != "" {
			return nil, fmt.Errorf("preprocessing error: %s", result.Error)
		}
		return nil, fmt.Errorf("preprocessing returned status %d", resp.StatusCode)
	}

	details := &model.AnnotatedDocumentDetails{
		AnnotatedPath:         result.AnnotatedPath,
		SectionsPerPage:       result.SectionsPerPage,
		OriginalFilesManifest: result.OriginalFilesManifest,
	}
	if err := validateDetails(details); err != nil {
		return nil, err
	}
	return details, nil
}

// validateDetails checks the manifest invariants before the details are
// trusted for citation resolution
func validateDetails(d *model.AnnotatedDocumentDetails) error {
	if d.AnnotatedPath == "" {
		return fmt.Errorf("preprocessing returned no annotated path")
	}
	if d.SectionsPerPage == 0 {
		// annotation services default to 10 lettered bands
		d.SectionsPerPage = 10
	}
	if d.SectionsPerPage < 1 {
		return fmt.Errorf("invalid sections_per_page %d", d.SectionsPerPage)
	}
	if len(d.OriginalFilesManifest) == 0 {
		return fmt.Errorf("preprocessing returned an empty manifest")
	}
	for _, f := range d.OriginalFilesManifest {
		if f.Path == "" || f.PageCount < 1 {
			return fmt.Errorf("invalid manifest entry %+v", f)
		}
	}
	return nil
}
