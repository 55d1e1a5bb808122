package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Legalphoenix/tabular-review/config"
	"github.com/Legalphoenix/tabular-review/model"
	"github.com/Legalphoenix/tabular-review/service"
	"github.com/gin-gonic/gin"
)

func postJSON(t *testing.T, router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestColumnHandlerSave(t *testing.T) {
	store := service.NewReviewStore(200)
	handler := &ColumnHandler{store: store}

	router := gin.New()
	router.POST("/columns", handler.Save)

	w := postJSON(t, router, "/columns", SaveColumnRequest{
		Label:  "Termination date",
		Prompt: "When does the agreement terminate?",
		Format: model.FormatDate,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Column  model.Column `json:"column"`
		Changed bool         `json:"changed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Column.ID == "" {
		t.Error("Expected server-assigned column id")
	}
	if !response.Changed {
		t.Error("Expected changed=true for a new column")
	}
}

func TestColumnHandlerSaveValidation(t *testing.T) {
	store := service.NewReviewStore(200)
	handler := &ColumnHandler{store: store}

	router := gin.New()
	router.POST("/columns", handler.Save)

	tests := []struct {
		name           string
		req            SaveColumnRequest
		expectedStatus int
	}{
		{
			name:           "empty label",
			req:            SaveColumnRequest{Prompt: "p", Format: model.FormatText},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown format",
			req:            SaveColumnRequest{Label: "L", Prompt: "p", Format: "Sonnet"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty prompt",
			req:            SaveColumnRequest{Label: "L", Format: model.FormatText},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "manual input needs no prompt",
			req:            SaveColumnRequest{Label: "Notes", Format: model.FormatManualInput},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown id",
			req:            SaveColumnRequest{ID: "ghost", Label: "L", Prompt: "p", Format: model.FormatText},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/columns", tt.req)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestColumnHandlerSaveEditUnchanged(t *testing.T) {
	store := service.NewReviewStore(200)
	col, _, err := store.SaveColumn(model.Column{Label: "Parties", Prompt: "Who are the parties?", Format: model.FormatText})
	if err != nil {
		t.Fatalf("Failed to seed column: %v", err)
	}

	handler := &ColumnHandler{store: store}

	router := gin.New()
	router.POST("/columns", handler.Save)

	w := postJSON(t, router, "/columns", SaveColumnRequest{
		ID:     col.ID,
		Label:  col.Label,
		Prompt: col.Prompt,
		Format: col.Format,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Changed bool `json:"changed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Changed {
		t.Error("Expected changed=false for an identical resave")
	}
}

func TestColumnHandlerList(t *testing.T) {
	store := service.NewReviewStore(200)
	store.SaveColumn(model.Column{Label: "A", Prompt: "a?", Format: model.FormatText})
	store.SaveColumn(model.Column{Label: "B", Prompt: "b?", Format: model.FormatYesNo})

	handler := &ColumnHandler{store: store}

	router := gin.New()
	router.GET("/columns", handler.List)

	req := httptest.NewRequest("GET", "/columns", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Columns []model.Column `json:"columns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Columns) != 2 {
		t.Errorf("Expected 2 columns, got %d", len(response.Columns))
	}
	if response.Columns[0].Label != "A" {
		t.Errorf("Expected creation order preserved, got %s first", response.Columns[0].Label)
	}
}

func TestColumnHandlerDelete(t *testing.T) {
	store := service.NewReviewStore(200)
	col, _, err := store.SaveColumn(model.Column{Label: "Doomed", Prompt: "?", Format: model.FormatText})
	if err != nil {
		t.Fatalf("Failed to seed column: %v", err)
	}

	handler := &ColumnHandler{store: store}

	router := gin.New()
	router.DELETE("/columns/:id", handler.Delete)

	req := httptest.NewRequest("DELETE", "/columns/"+col.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 without confirm, got %d", w.Code)
	}

	req = httptest.NewRequest("DELETE", "/columns/"+col.ID+"?confirm=true", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest("DELETE", "/columns/"+col.ID+"?confirm=true", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for deleted column, got %d", w.Code)
	}
}

func TestColumnHandlerSuggestPrompt(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate_prompt" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req service.SuggestPromptRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(service.SuggestPromptResponse{
			SuggestedPrompt: "What is the " + req.Label + "?",
		})
	}))
	defer remote.Close()

	answerSvc := service.NewAnswerService(&config.ServicesConfig{
		AnswerURL:      remote.URL + "/api/generate",
		TimeoutSeconds: 5,
	})
	handler := &ColumnHandler{answerService: answerSvc, store: service.NewReviewStore(200)}

	router := gin.New()
	router.POST("/columns/suggest", handler.SuggestPrompt)

	w := postJSON(t, router, "/columns/suggest", SuggestPromptRequest{
		Label:  "governing law",
		Format: model.FormatText,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["suggested_prompt"] != "What is the governing law?" {
		t.Errorf("Unexpected suggestion: %s", response["suggested_prompt"])
	}
}

func TestColumnHandlerSuggestPromptBadFormat(t *testing.T) {
	handler := &ColumnHandler{store: service.NewReviewStore(200)}

	router := gin.New()
	router.POST("/columns/suggest", handler.SuggestPrompt)

	w := postJSON(t, router, "/columns/suggest", SuggestPromptRequest{
		Label:  "anything",
		Format: "Interpretive dance",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
