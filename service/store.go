package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Legalphoenix/tabular-review/config"
	"github.com/Legalphoenix/tabular-review/model"
	"github.com/google/uuid"
)

// Store errors
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrColumnNotFound   = errors.New("column not found")
	ErrAppendixNotFound = errors.New("appendix not found")
	ErrCellNotFound     = errors.New("cell not found")
)

// DocumentEntry is one upload submitted to AddDocuments
type DocumentEntry struct {
	Name       string
	ObjectName string
	Size       int64
}

// AppendixEntry is one file submitted to AddAppendices
type AppendixEntry struct {
	Name       string
	ObjectName string
	Size       int64
}

// ReviewStore is the in-memory registry of documents, columns and the cell
// matrix. All state lives in the running process; there is no persistence.
//
// The matrix invariant: after every structural mutation, exactly one cell
// exists per (document, column) pair and no cell exists for a removed pair.
// Reconciliation preserves cells for pairs that survive a change.
type ReviewStore struct {
	mu           sync.RWMutex
	docs         []*model.Document
	cols         []*model.Column
	cells        map[string]map[string]*model.Cell // docID -> colID -> cell
	version      uint64
	maxDocuments int // Maximum documents to keep, 0 = unlimited
}

var (
	globalStore *ReviewStore
	storeOnce   sync.Once
)

// InitReviewStore initializes the global review store with configuration
func InitReviewStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		maxDocuments := cfg.MaxDocuments
		if maxDocuments < 0 {
			maxDocuments = 0
		}
		globalStore = NewReviewStore(maxDocuments)
		slog.Info("review store initialized", "max_documents", maxDocuments)
	})
}

// GetReviewStore returns the global review store
func GetReviewStore() *ReviewStore {
	if globalStore == nil {
		globalStore = NewReviewStore(200)
	}
	return globalStore
}

// NewReviewStore creates an empty store
func NewReviewStore(maxDocuments int) *ReviewStore {
	return &ReviewStore{
		cells:        make(map[string]map[string]*model.Cell),
		maxDocuments: maxDocuments,
	}
}

// Version returns a counter that advances only on observable structural
// change (documents or columns added, removed or substantively edited).
// Idempotent reconciliation does not advance it.
func (s *ReviewStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// AddDocuments appends the accepted entries in submission order. Entries
// whose display name collides with an existing document (or an earlier entry
// in the same batch) are rejected individually.
func (s *ReviewStore) AddDocuments(entries []DocumentEntry) (added []*model.Document, rejected []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[string]bool, len(s.docs))
	for _, d := range s.docs {
		names[d.Name] = true
	}

	for _, e := range entries {
		if names[e.Name] {
			rejected = append(rejected, e.Name)
			continue
		}
		if s.maxDocuments > 0 && len(s.docs) >= s.maxDocuments {
			slog.Warn("document limit reached, rejecting upload", "name", e.Name, "max_documents", s.maxDocuments)
			rejected = append(rejected, e.Name)
			continue
		}
		doc := &model.Document{
			ID:         uuid.New().String(),
			Name:       e.Name,
			ObjectName: e.ObjectName,
			Size:       e.Size,
			Appendices: []model.AppendixFile{},
			Status:     model.DocStatusNotStarted,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		names[e.Name] = true
		s.docs = append(s.docs, doc)
		added = append(added, doc.Clone())
	}

	if len(added) > 0 {
		s.reconcileLocked()
		// A new document is a structural change even when no columns exist
		// yet and reconciliation had no cells to create
		s.version++
	}
	return added, rejected
}

// Documents returns all documents in upload order
func (s *ReviewStore) Documents() []*model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Document, 0, len(s.docs))
	for _, d := range s.docs {
		result = append(result, d.Clone())
	}
	return result
}

// Document returns one document by id
func (s *ReviewStore) Document(id string) (*model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d := s.findDoc(id); d != nil {
		return d.Clone(), true
	}
	return nil, false
}

// RemoveDocument deletes the document and its cell row
func (s *ReviewStore) RemoveDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, d := range s.docs {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrDocumentNotFound
	}

	s.docs = append(s.docs[:idx], s.docs[idx+1:]...)
	s.reconcileLocked()
	s.version++
	return nil
}

// AddAppendices appends accepted files to the document's appendix list.
// Files whose name matches an existing appendix are rejected individually.
// Any accepted file invalidates the annotated details: the document drops to
// processing until preprocessing runs again.
func (s *ReviewStore) AddAppendices(id string, files []AppendixEntry) (added []model.AppendixFile, rejected []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.findDoc(id)
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}

	names := make(map[string]bool, len(doc.Appendices))
	for _, a := range doc.Appendices {
		names[a.Name] = true
	}

	for _, f := range files {
		if names[f.Name] {
			rejected = append(rejected, f.Name)
			continue
		}
		appendix := model.AppendixFile{
			ID:         uuid.New().String(),
			Name:       f.Name,
			ObjectName: f.ObjectName,
			Size:       f.Size,
		}
		names[f.Name] = true
		doc.Appendices = append(doc.Appendices, appendix)
		added = append(added, appendix)
	}

	if len(added) > 0 {
		s.invalidateAnnotatedLocked(doc)
		s.version++
	}
	return added, rejected, nil
}

// RemoveAppendix removes the appendix matching name; when several appendices
// share a name, byte size breaks the tie. Removal invalidates the annotated
// details.
func (s *ReviewStore) RemoveAppendix(id string, name string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.findDoc(id)
	if doc == nil {
		return ErrDocumentNotFound
	}

	idx := -1
	for i, a := range doc.Appendices {
		if a.Name != name {
			continue
		}
		if a.Size == size {
			idx = i
			break
		}
		if idx < 0 {
			idx = i
		}
	}
	if idx < 0 {
		return ErrAppendixNotFound
	}

	doc.Appendices = append(doc.Appendices[:idx], doc.Appendices[idx+1:]...)
	s.invalidateAnnotatedLocked(doc)
	s.version++
	return nil
}

// MarkProcessing flags the document as being preprocessed
func (s *ReviewStore) MarkProcessing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.findDoc(id)
	if doc == nil {
		return ErrDocumentNotFound
	}
	doc.Status = model.DocStatusProcessing
	doc.ProcessingError = ""
	doc.UpdatedAt = time.Now()
	return nil
}

// SetPreprocessingResult records a successful preprocessing outcome. A result
// arriving for a removed document is dropped silently.
func (s *ReviewStore) SetPreprocessingResult(id string, details *model.AnnotatedDocumentDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.findDoc(id)
	if doc == nil {
		slog.Debug("dropping preprocessing result for removed document", "document_id", id)
		return
	}
	doc.Annotated = details
	doc.Status = model.DocStatusReady
	doc.ProcessingError = ""
	doc.UpdatedAt = time.Now()
}

// SetPreprocessingError records a failed preprocessing outcome. An error
// arriving for a removed document is dropped silently.
func (s *ReviewStore) SetPreprocessingError(id string, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.findDoc(id)
	if doc == nil {
		slog.Debug("dropping preprocessing error for removed document", "document_id", id)
		return
	}
	doc.Annotated = nil
	doc.Status = model.DocStatusFailed
	doc.ProcessingError = msg
	doc.UpdatedAt = time.Now()
}

// SaveColumn creates or replaces a column definition. An existing column is
// replaced in place (order preserved); changed reports whether label, prompt
// or format actually differ, in which case every cell of that column resets
// to idle. Validation failures reject the save without mutating state, and
// saving with an unknown id fails rather than resurrecting a deleted column.
func (s *ReviewStore) SaveColumn(def model.Column) (col model.Column, changed bool, err error) {
	if err := def.Validate(); err != nil {
		return model.Column{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID != "" {
		for i, existing := range s.cols {
			if existing.ID != def.ID {
				continue
			}
			changed = existing.Label != def.Label ||
				existing.Prompt != def.Prompt ||
				existing.Format != def.Format
			updated := def
			s.cols[i] = &updated
			if changed {
				for _, row := range s.cells {
					if cell, ok := row[def.ID]; ok {
						cell.Status = model.CellStatusIdle
					}
				}
				s.version++
			}
			return updated, changed, nil
		}
		// Editing a column that was deleted meanwhile must not resurrect it
		return model.Column{}, false, ErrColumnNotFound
	}

	def.ID = uuid.New().String()
	created := def
	s.cols = append(s.cols, &created)
	s.reconcileLocked()
	s.version++
	return created, true, nil
}

// Columns returns all columns in insertion order
func (s *ReviewStore) Columns() []model.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Column, 0, len(s.cols))
	for _, c := range s.cols {
		result = append(result, *c)
	}
	return result
}

// Column returns one column by id
func (s *ReviewStore) Column(id string) (model.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cols {
		if c.ID == id {
			return *c, true
		}
	}
	return model.Column{}, false
}

// RemoveColumn deletes the column and its cells from every document row
func (s *ReviewStore) RemoveColumn(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.cols {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrColumnNotFound
	}

	s.cols = append(s.cols[:idx], s.cols[idx+1:]...)
	s.reconcileLocked()
	s.version++
	return nil
}

// Cell returns a copy of the cell for the pair, if the pair exists
func (s *ReviewStore) Cell(docID, colID string) (model.Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if row, ok := s.cells[docID]; ok {
		if cell, ok := row[colID]; ok {
			return *cell, true
		}
	}
	return model.Cell{}, false
}

// Cells returns a copy of the whole matrix
func (s *ReviewStore) Cells() map[string]map[string]model.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]model.Cell, len(s.cells))
	for docID, row := range s.cells {
		cp := make(map[string]model.Cell, len(row))
		for colID, cell := range row {
			cp[colID] = *cell
		}
		result[docID] = cp
	}
	return result
}

// StartCell moves the cell to loading, preserving the previous answer text.
// Returns false if the pair no longer exists.
func (s *ReviewStore) StartCell(docID, colID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := s.findCell(docID, colID)
	if cell == nil {
		return false
	}
	cell.Status = model.CellStatusLoading
	return true
}

// SetCellResult records the outcome of a cell execution. Concurrent writers
// are not serialized beyond the store lock: the last write wins. A result
// for a pruned pair is dropped silently (the execution outlived its slot).
func (s *ReviewStore) SetCellResult(docID, colID, status, answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := s.findCell(docID, colID)
	if cell == nil {
		slog.Debug("dropping cell result for pruned pair", "document_id", docID, "column_id", colID)
		return false
	}
	cell.Status = status
	cell.Answer = answer
	return true
}

// SaveCellContent applies a manual edit: status forced to done, answer
// replaced. Identical content on an already-done cell is a no-op.
func (s *ReviewStore) SaveCellContent(docID, colID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := s.findCell(docID, colID)
	if cell == nil {
		return false, ErrCellNotFound
	}
	if cell.Status == model.CellStatusDone && cell.Answer == text {
		return false, nil
	}
	cell.Status = model.CellStatusDone
	cell.Answer = text
	return true, nil
}

// Reconcile recomputes the full pair set. Idempotent: a second run with no
// intervening change produces no observable diff and leaves Version alone.
func (s *ReviewStore) Reconcile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reconcileLocked() {
		s.version++
		return true
	}
	return false
}

// CountDocuments returns the number of documents in the store
func (s *ReviewStore) CountDocuments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// reconcileLocked rebuilds the matrix against the current registries. For
// every live pair an existing cell is kept as-is, a missing cell starts
// idle with an empty answer; rows and cells for removed ids are pruned.
// Must be called with the write lock held.
func (s *ReviewStore) reconcileLocked() bool {
	changed := false

	colIDs := make(map[string]bool, len(s.cols))
	for _, c := range s.cols {
		colIDs[c.ID] = true
	}
	docIDs := make(map[string]bool, len(s.docs))
	for _, d := range s.docs {
		docIDs[d.ID] = true
	}

	for docID, row := range s.cells {
		if !docIDs[docID] {
			delete(s.cells, docID)
			changed = true
			continue
		}
		for colID := range row {
			if !colIDs[colID] {
				delete(row, colID)
				changed = true
			}
		}
	}

	for _, d := range s.docs {
		row, ok := s.cells[d.ID]
		if !ok {
			row = make(map[string]*model.Cell, len(s.cols))
			s.cells[d.ID] = row
		}
		for _, c := range s.cols {
			if _, ok := row[c.ID]; !ok {
				row[c.ID] = &model.Cell{Status: model.CellStatusIdle, Answer: ""}
				changed = true
			}
		}
	}

	return changed
}

// invalidateAnnotatedLocked drops stale annotated details after an appendix
// mutation; the document must be preprocessed again before cells can run.
// Must be called with the write lock held.
func (s *ReviewStore) invalidateAnnotatedLocked(doc *model.Document) {
	doc.Annotated = nil
	doc.Status = model.DocStatusProcessing
	doc.ProcessingError = ""
	doc.UpdatedAt = time.Now()
}

func (s *ReviewStore) findDoc(id string) *model.Document {
	for _, d := range s.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *ReviewStore) findCell(docID, colID string) *model.Cell {
	if row, ok := s.cells[docID]; ok {
		return row[colID]
	}
	return nil
}
