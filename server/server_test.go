package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
)

type fakePicker struct {
	mu       sync.Mutex
	names    []string
	nameErr  error
	picked   []string
	pickErr  error
	placeErr error

	pickedArg []string
	placed    bool
}

func (f *fakePicker) RecognizePrescription(ctx context.Context) ([]string, error) {
	return f.names, f.nameErr
}

func (f *fakePicker) PickAll(ctx context.Context, items []string) ([]string, error) {
	f.mu.Lock()
	f.pickedArg = append([]string(nil), items...)
	f.mu.Unlock()
	return f.picked, f.pickErr
}

func (f *fakePicker) PlaceBasket(ctx context.Context) error {
	f.mu.Lock()
	f.placed = true
	f.mu.Unlock()
	return f.placeErr
}

func newTestServer(t *testing.T, p *fakePicker) (*Server, *http.ServeMux, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "medicines.txt")
	s := NewServer(p, file, logging.NewTestLogger(t))
	return s, s.ServeMux(), file
}

func postTask(t *testing.T, mux *http.ServeMux, path string) (string, int) {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	if w.Code != http.StatusOK {
		return "", w.Code
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	if resp["task_id"] == "" {
		t.Fatalf("%s returned no task_id", path)
	}
	return resp["task_id"], w.Code
}

// waitForTask polls the status endpoint until the task leaves incomplete.
func waitForTask(t *testing.T, mux *http.ServeMux, id string) map[string]string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/task_status/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("task status returned %d", w.Code)
		}
		var resp map[string]string
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if resp["status"] != StatusIncomplete {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return nil
}

func TestRecognizePersistsMedicines(t *testing.T) {
	p := &fakePicker{names: []string{"aspirin", "ibuprofen"}}
	_, mux, file := newTestServer(t, p)

	id, code := postTask(t, mux, "/prescription_recognition")
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	resp := waitForTask(t, mux, id)
	if resp["status"] != StatusComplete {
		t.Errorf("Expected status complete, got %s", resp["status"])
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read medicines file: %v", err)
	}
	if string(data) != "aspirin\nibuprofen\n" {
		t.Errorf("medicines file = %q", string(data))
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prescription_list", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if !reflect.DeepEqual(list["medicines"], []string{"aspirin", "ibuprofen"}) {
		t.Errorf("medicines = %v", list["medicines"])
	}
}

func TestRecognizeFailureReported(t *testing.T) {
	p := &fakePicker{nameErr: errors.New("camera offline")}
	_, mux, _ := newTestServer(t, p)

	id, _ := postTask(t, mux, "/prescription_recognition")
	resp := waitForTask(t, mux, id)
	if resp["status"] != StatusFailed {
		t.Errorf("Expected status failed, got %s", resp["status"])
	}
	if resp["detail"] != "camera offline" {
		t.Errorf("detail = %q", resp["detail"])
	}
}

func TestStartGraspEmptyListRejected(t *testing.T) {
	p := &fakePicker{}
	_, mux, _ := newTestServer(t, p)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start_grasp", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("Expected an error message")
	}
}

func TestStartGraspRewritesRemaining(t *testing.T) {
	p := &fakePicker{picked: []string{"aspirin", "vitamin c"}}
	s, mux, file := newTestServer(t, p)
	if err := s.writeMedicines([]string{"aspirin", "paracetamol", "vitamin c"}); err != nil {
		t.Fatalf("seed medicines: %v", err)
	}

	id, code := postTask(t, mux, "/start_grasp")
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	resp := waitForTask(t, mux, id)
	if resp["status"] != StatusComplete {
		t.Errorf("Expected status complete, got %s", resp["status"])
	}

	p.mu.Lock()
	got := p.pickedArg
	p.mu.Unlock()
	if !reflect.DeepEqual(got, []string{"aspirin", "paracetamol", "vitamin c"}) {
		t.Errorf("PickAll received %v", got)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read medicines file: %v", err)
	}
	if string(data) != "paracetamol\n" {
		t.Errorf("remaining medicines = %q", string(data))
	}
}

func TestStartGraspFailureKeepsUnpicked(t *testing.T) {
	p := &fakePicker{picked: []string{"aspirin"}, pickErr: errors.New("arm fault")}
	s, mux, file := newTestServer(t, p)
	if err := s.writeMedicines([]string{"aspirin", "paracetamol"}); err != nil {
		t.Fatalf("seed medicines: %v", err)
	}

	id, _ := postTask(t, mux, "/start_grasp")
	resp := waitForTask(t, mux, id)
	if resp["status"] != StatusFailed {
		t.Errorf("Expected status failed, got %s", resp["status"])
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read medicines file: %v", err)
	}
	if string(data) != "paracetamol\n" {
		t.Errorf("remaining medicines = %q", string(data))
	}
}

func TestPlaceBasket(t *testing.T) {
	p := &fakePicker{}
	_, mux, _ := newTestServer(t, p)

	id, code := postTask(t, mux, "/place_medicine_basket")
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	resp := waitForTask(t, mux, id)
	if resp["status"] != StatusComplete {
		t.Errorf("Expected status complete, got %s", resp["status"])
	}
	p.mu.Lock()
	placed := p.placed
	p.mu.Unlock()
	if !placed {
		t.Error("PlaceBasket was never called")
	}
}

func TestTaskStatusUnknown(t *testing.T) {
	p := &fakePicker{}
	_, mux, _ := newTestServer(t, p)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/task_status/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestMethodGuards(t *testing.T) {
	p := &fakePicker{}
	_, mux, _ := newTestServer(t, p)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/prescription_recognition"},
		{http.MethodGet, "/start_grasp"},
		{http.MethodGet, "/place_medicine_basket"},
		{http.MethodPost, "/prescription_list"},
		{http.MethodPost, "/task_status/x"},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(c.method, c.path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status 405, got %d", c.method, c.path, w.Code)
		}
	}
}

func TestRemaining(t *testing.T) {
	got := remaining([]string{"a", "b", "a", "c"}, []string{"a", "c"})
	if !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("remaining = %v", got)
	}
}
