package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"nutrition-rag/internal/vectorstore"
	vectorstore_mocks "nutrition-rag/internal/vectorstore/mocks"

	"go.uber.org/mock/gomock"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*vectorstore_mocks.MockVectorStore)
		expectedStatus int
		wantStatus     string
		wantIssue      string
	}{
		{
			name: "healthy",
			setupMock: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().IndexExists(gomock.Any(), "nutrition").Return(true, nil)
				m.EXPECT().IndexInfo(gomock.Any(), "nutrition").Return(&vectorstore.IndexInfo{Name: "nutrition", Count: 42}, nil)
			},
			expectedStatus: http.StatusOK,
			wantStatus:     "healthy",
		},
		{
			name: "empty index",
			setupMock: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().IndexExists(gomock.Any(), "nutrition").Return(true, nil)
				m.EXPECT().IndexInfo(gomock.Any(), "nutrition").Return(&vectorstore.IndexInfo{Name: "nutrition"}, nil)
			},
			expectedStatus: http.StatusServiceUnavailable,
			wantStatus:     "degraded",
			wantIssue:      "index_empty",
		},
		{
			name: "missing index",
			setupMock: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().IndexExists(gomock.Any(), "nutrition").Return(false, nil)
			},
			expectedStatus: http.StatusServiceUnavailable,
			wantStatus:     "unhealthy",
			wantIssue:      "vector_store_unavailable",
		},
		{
			name: "store unreachable",
			setupMock: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().IndexExists(gomock.Any(), "nutrition").Return(false, errors.New("connection refused"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			wantStatus:     "unhealthy",
			wantIssue:      "vector_store_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockStore := vectorstore_mocks.NewMockVectorStore(ctrl)
			tt.setupMock(mockStore)
			handler := NewHealthHandler(mockStore, "nutrition")

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if tt.wantIssue == "" && len(resp.Issues) != 0 {
				t.Errorf("Issues = %v, want none", resp.Issues)
			}
			if tt.wantIssue != "" && (len(resp.Issues) != 1 || resp.Issues[0] != tt.wantIssue) {
				t.Errorf("Issues = %v, want [%s]", resp.Issues, tt.wantIssue)
			}
		})
	}
}
