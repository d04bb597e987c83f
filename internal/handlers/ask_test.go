package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/rag"
	"nutrition-rag/internal/service"
	service_mocks "nutrition-rag/internal/service/mocks"

	"go.uber.org/mock/gomock"
)

func intPtr(v int) *int { return &v }

func float32Ptr(v float32) *float32 { return &v }

func TestAskHandler_ServeHTTP(t *testing.T) {
	contexts := []rag.ContextItem{
		{Text: "Protein builds muscle.", Page: 12, Score: 0.91},
		{Text: "Carbohydrates fuel the brain.", Page: 40, Score: 0.72},
	}

	tests := []struct {
		name           string
		method         string
		body           string
		setupMock      func(*service_mocks.MockAskService)
		expectedStatus int
		checkBody      func(*testing.T, []byte)
	}{
		{
			name:   "answer with contexts",
			method: http.MethodPost,
			body:   `{"question":"What builds muscle?","top_k":2,"temperature":0.5,"max_tokens":256}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), service.AskRequest{
					Question:    "What builds muscle?",
					TopK:        intPtr(2),
					Temperature: float32Ptr(0.5),
					MaxTokens:   intPtr(256),
				}).Return(rag.AskResponse{Answer: "Protein.", Contexts: contexts}, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body []byte) {
				var resp AskResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Answer != "Protein." {
					t.Errorf("Answer = %q, want %q", resp.Answer, "Protein.")
				}
				if resp.Error != "" {
					t.Errorf("Error = %q, want empty", resp.Error)
				}
				if len(resp.Contexts) != 2 || resp.Contexts[0].Page != 12 || resp.Contexts[1].Text != "Carbohydrates fuel the brain." {
					t.Errorf("Contexts = %+v", resp.Contexts)
				}
				if strings.Contains(string(body), `"error"`) {
					t.Errorf("body should omit error field: %s", body)
				}
			},
		},
		{
			name:   "omitted parameters stay nil",
			method: http.MethodPost,
			body:   `{"question":"What is fiber?"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), service.AskRequest{Question: "What is fiber?"}).
					Return(rag.AskResponse{Answer: "A carbohydrate.", Contexts: []rag.ContextItem{}}, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body []byte) {
				if !strings.Contains(string(body), `"contexts":[]`) {
					t.Errorf("contexts should encode as an empty array: %s", body)
				}
			},
		},
		{
			name:   "generation failure keeps contexts",
			method: http.MethodPost,
			body:   `{"question":"What builds muscle?"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{
					Contexts:      contexts,
					GenerationErr: apperr.New(apperr.KindUpstream, "generate", errors.New("status 401")),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body []byte) {
				var resp AskResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Answer != FallbackAnswer {
					t.Errorf("Answer = %q, want %q", resp.Answer, FallbackAnswer)
				}
				if resp.Error != ErrGenerationFailed {
					t.Errorf("Error = %q, want %q", resp.Error, ErrGenerationFailed)
				}
				if len(resp.Contexts) != 2 {
					t.Errorf("len(Contexts) = %d, want 2", len(resp.Contexts))
				}
			},
		},
		{
			name:   "empty question",
			method: http.MethodPost,
			body:   `{"question":"   "}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{}, &apperr.ValidationError{Field: "question", Message: "Please enter a valid question."})
			},
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				_ = json.Unmarshal(body, &resp)
				if resp.Error != "Please enter a valid question." {
					t.Errorf("Error = %q", resp.Error)
				}
			},
		},
		{
			name:   "parameter out of range",
			method: http.MethodPost,
			body:   `{"question":"q","top_k":50}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{}, &apperr.ValidationError{Field: "top_k", Message: "must be between 1 and 10"})
			},
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				_ = json.Unmarshal(body, &resp)
				if resp.Error != "top_k must be between 1 and 10" {
					t.Errorf("Error = %q", resp.Error)
				}
			},
		},
		{
			name:           "invalid body",
			method:         http.MethodPost,
			body:           `{"question":`,
			setupMock:      func(m *service_mocks.MockAskService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "method not allowed",
			method:         http.MethodGet,
			setupMock:      func(m *service_mocks.MockAskService) {},
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:   "transient embedding failure",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{},
					apperr.WrapError(apperr.New(apperr.KindTransientUpstream, "embed query", errors.New("status 503")), "failed to answer question"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:   "upstream rejection",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{},
					apperr.New(apperr.KindUpstream, "embed query", errors.New("status 400")))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:   "missing index",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{},
					apperr.Errorf(apperr.KindDataContract, "query", "collection %q does not exist", "nutrition"))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:   "unclassified failure",
			method: http.MethodPost,
			body:   `{"question":"q"}`,
			setupMock: func(m *service_mocks.MockAskService) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockService := service_mocks.NewMockAskService(ctrl)
			tt.setupMock(mockService)
			handler := NewAskHandler(mockService)

			req := httptest.NewRequest(tt.method, "/api/v1/ask", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); tt.expectedStatus != http.StatusMethodNotAllowed && ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if tt.checkBody != nil {
				tt.checkBody(t, w.Body.Bytes())
			}
		})
	}
}
