package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Legalphoenix/tabular-review/model"
)

func readyDoc(t *testing.T, store *ReviewStore, name string) *model.Document {
	t.Helper()
	doc := addDoc(t, store, name)
	store.SetPreprocessingResult(doc.ID, &model.AnnotatedDocumentDetails{
		AnnotatedPath:         "annotated/" + name,
		SectionsPerPage:       10,
		OriginalFilesManifest: []model.ManifestFile{{Path: name, PageCount: 3}},
	})
	return doc
}

func waitForStatus(t *testing.T, store *ReviewStore, docID, colID, status string) model.Cell {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cell, ok := store.Cell(docID, colID); ok && cell.Status == status {
			return cell
		}
		time.Sleep(5 * time.Millisecond)
	}
	cell, _ := store.Cell(docID, colID)
	t.Fatalf("Timed out waiting for status %s, cell %+v", status, cell)
	return model.Cell{}
}

func TestRunCellSuccess(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotPrompt = r.FormValue("prompt")
		json.NewEncoder(w).Encode(map[string]string{"answer": "Yes [ref:P1SA]"})
	}))
	defer srv.Close()

	store := newTestStore()
	doc := readyDoc(t, store, "a.pdf")
	col, _, err := store.SaveColumn(model.Column{Label: "Signed?", Prompt: "Is the agreement signed?", Format: model.FormatYesNo})
	if err != nil {
		t.Fatalf("SaveColumn failed: %v", err)
	}

	runner := NewCellRunner(store, NewAnswerService(answerConfig(srv.URL)))
	runner.RunCell(context.Background(), doc.ID, col.ID)

	cell, _ := store.Cell(doc.ID, col.ID)
	if cell.Status != model.CellStatusDone || cell.Answer != "Yes [ref:P1SA]" {
		t.Errorf("Unexpected cell %+v", cell)
	}

	if !strings.Contains(gotPrompt, "Is the agreement signed?") {
		t.Error("Prompt should contain the base question")
	}
	if !strings.Contains(gotPrompt, "Answer only with 'Yes' or 'No'.") {
		t.Error("Prompt should carry the Yes/No suffix")
	}
	if !strings.Contains(gotPrompt, "[ref:P<page>S<letter>]") {
		t.Error("Prompt should carry the citation instruction")
	}
}

func TestBuildPromptSuffixes(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{model.FormatYesNo, "Answer only with 'Yes' or 'No'."},
		{model.FormatBulletedList, "Format the answer as a bulleted list"},
		{model.FormatDate, "format it as YYYY-MM-DD"},
		{model.FormatTag, "single most relevant tag"},
		{model.FormatMultipleTags, "separated by commas"},
		{model.FormatVerbatim, "verbatim from the document exactly as it appears"},
	}

	for _, tt := range tests {
		prompt := BuildPrompt(model.Column{Label: "L", Prompt: "Base.", Format: tt.format})
		if !strings.Contains(prompt, tt.want) {
			t.Errorf("%s: prompt missing %q", tt.format, tt.want)
		}
	}

	// Text carries no suffix beyond the citation instruction
	prompt := BuildPrompt(model.Column{Label: "L", Prompt: "Base.", Format: model.FormatText})
	if !strings.HasPrefix(prompt, "Base.\n\nWhen you reference") {
		t.Errorf("Text prompt should go straight to the citation instruction: %q", prompt)
	}
}

func TestRunCellManualInputSkipped(t *testing.T) {
	store := newTestStore()
	doc := readyDoc(t, store, "a.pdf")
	col, _, _ := store.SaveColumn(model.Column{Label: "Notes", Format: model.FormatManualInput})

	runner := NewCellRunner(store, NewAnswerService(answerConfig("http://127.0.0.1:1")))
	runner.RunCell(context.Background(), doc.ID, col.ID)

	cell, _ := store.Cell(doc.ID, col.ID)
	if cell.Status != model.CellStatusIdle {
		t.Errorf("Manual input cell should stay idle, got %s", cell.Status)
	}
}

func TestRunCellFailFast(t *testing.T) {
	store := newTestStore()
	runner := NewCellRunner(store, NewAnswerService(answerConfig("http://127.0.0.1:1")))

	col, _, _ := store.SaveColumn(model.Column{Label: "Parties", Prompt: "Who?", Format: model.FormatText})

	t.Run("document still processing", func(t *testing.T) {
		doc := addDoc(t, store, "processing.pdf")
		store.MarkProcessing(doc.ID)
		runner.RunCell(context.Background(), doc.ID, col.ID)
		cell, _ := store.Cell(doc.ID, col.ID)
		if cell.Status != model.CellStatusError || !strings.Contains(cell.Answer, "preprocessed") {
			t.Errorf("Unexpected cell %+v", cell)
		}
	})

	t.Run("preprocessing failed", func(t *testing.T) {
		doc := addDoc(t, store, "failed.pdf")
		store.SetPreprocessingError(doc.ID, "merge exploded")
		runner.RunCell(context.Background(), doc.ID, col.ID)
		cell, _ := store.Cell(doc.ID, col.ID)
		if cell.Status != model.CellStatusError || !strings.Contains(cell.Answer, "merge exploded") {
			t.Errorf("Unexpected cell %+v", cell)
		}
	})

	t.Run("no annotated details", func(t *testing.T) {
		doc := addDoc(t, store, "raw.pdf")
		runner.RunCell(context.Background(), doc.ID, col.ID)
		cell, _ := store.Cell(doc.ID, col.ID)
		if cell.Status != model.CellStatusError || !strings.Contains(cell.Answer, "not been preprocessed") {
			t.Errorf("Unexpected cell %+v", cell)
		}
	})
}

func TestRunCellPreservesAnswerWhileLoading(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(map[string]string{"answer": "fresh"})
	}))
	defer srv.Close()

	store := newTestStore()
	doc := readyDoc(t, store, "a.pdf")
	col, _, _ := store.SaveColumn(model.Column{Label: "Parties", Prompt: "Who?", Format: model.FormatText})
	store.SetCellResult(doc.ID, col.ID, model.CellStatusDone, "stale")

	runner := NewCellRunner(store, NewAnswerService(answerConfig(srv.URL)))
	go runner.RunCell(context.Background(), doc.ID, col.ID)

	cell := waitForStatus(t, store, doc.ID, col.ID, model.CellStatusLoading)
	if cell.Answer != "stale" {
		t.Errorf("Loading should preserve the previous answer, got %q", cell.Answer)
	}

	close(release)
	waitForStatus(t, store, doc.ID, col.ID, model.CellStatusDone)
}

func TestRunCellLastWriteWins(t *testing.T) {
	firstBlocked := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			// Hold the first response until the second has landed
			<-firstBlocked
			json.NewEncoder(w).Encode(map[string]string{"answer": "late"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": "early"})
	}))
	defer srv.Close()

	store := newTestStore()
	doc := readyDoc(t, store, "a.pdf")
	col, _, _ := store.SaveColumn(model.Column{Label: "Parties", Prompt: "Who?", Format: model.FormatText})

	runner := NewCellRunner(store, NewAnswerService(answerConfig(srv.URL)))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.RunCell(context.Background(), doc.ID, col.ID)
	}()
	// Second click on the same cell while the first is in flight
	go func() {
		defer wg.Done()
		// Make sure the first request got to the server before firing
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			started := calls >= 1
			mu.Unlock()
			if started {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}
		runner.RunCell(context.Background(), doc.ID, col.ID)
		close(firstBlocked)
	}()
	wg.Wait()

	cell, _ := store.Cell(doc.ID, col.ID)
	if cell.Status != model.CellStatusDone || cell.Answer != "late" {
		t.Errorf("Last response should win, got %+v", cell)
	}
}

func TestRunAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "ok"})
	}))
	defer srv.Close()

	store := newTestStore()
	docA := readyDoc(t, store, "a.pdf")
	docB := readyDoc(t, store, "b.pdf")
	text, _, _ := store.SaveColumn(model.Column{Label: "Parties", Prompt: "Who?", Format: model.FormatText})
	manual, _, _ := store.SaveColumn(model.Column{Label: "Notes", Format: model.FormatManualInput})

	// One cell already answered: it must not re-run
	store.SetCellResult(docA.ID, text.ID, model.CellStatusDone, "answered")

	runner := NewCellRunner(store, NewAnswerService(answerConfig(srv.URL)))
	launched := runner.RunAll(context.Background())
	if launched != 1 {
		t.Errorf("Expected 1 launched cell, got %d", launched)
	}

	waitForStatus(t, store, docB.ID, text.ID, model.CellStatusDone)

	if cell, _ := store.Cell(docA.ID, text.ID); cell.Answer != "answered" {
		t.Errorf("Done cell should not re-run, got %+v", cell)
	}
	if cell, _ := store.Cell(docA.ID, manual.ID); cell.Status != model.CellStatusIdle {
		t.Errorf("Manual cells should stay idle, got %+v", cell)
	}

	// Everything processed: nothing to launch
	waitForStatus(t, store, docB.ID, text.ID, model.CellStatusDone)
	if launched := runner.RunAll(context.Background()); launched != 0 {
		t.Errorf("Expected 0 launched cells, got %d", launched)
	}
}
