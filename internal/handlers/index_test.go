package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type blockingRunner struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (r *blockingRunner) All(context.Context) error {
	r.calls.Add(1)
	<-r.release
	return r.err
}

func TestIndexHandler_ServeHTTP(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), err: errors.New("embedding service down")}
	handler := NewIndexHandler(runner)

	post := func() int {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/index", nil))
		return w.Code
	}

	if got := post(); got != http.StatusAccepted {
		t.Fatalf("first request status = %d, want 202", got)
	}
	if got := post(); got != http.StatusConflict {
		t.Errorf("concurrent request status = %d, want 409", got)
	}

	close(runner.release)
	handler.Wait()

	if got := post(); got != http.StatusAccepted {
		t.Errorf("request after completion status = %d, want 202", got)
	}
	handler.Wait()

	if got := runner.calls.Load(); got != 2 {
		t.Errorf("All() calls = %d, want 2", got)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/index", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}
}
