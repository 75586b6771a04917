// Package server exposes the pick-and-place robot as a small HTTP task API.
// Every POST starts a background job and returns a task id immediately; the
// caller polls /task_status/{id} until the job reports complete or failed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.viam.com/rdk/logging"
)

// Picker is the robot surface the API drives.
type Picker interface {
	RecognizePrescription(ctx context.Context) ([]string, error)
	PickAll(ctx context.Context, items []string) ([]string, error)
	PlaceBasket(ctx context.Context) error
}

// Task statuses reported by /task_status.
const (
	StatusIncomplete = "incomplete"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

type taskRecord struct {
	Status string
	Detail string
}

// Server serves the task API. Motion jobs are serialized on runMu: the robot
// has a single orchestrator, so a second POST queues behind the running job
// rather than racing it for the arms.
type Server struct {
	picker Picker
	logger logging.Logger

	medicinesFile string
	fileMu        sync.Mutex

	runMu sync.Mutex

	mu    sync.Mutex
	tasks map[string]*taskRecord
}

// NewServer builds the API around a picker. medicinesFile is the persisted
// prescription list, one medicine name per line.
func NewServer(p Picker, medicinesFile string, logger logging.Logger) *Server {
	return &Server{
		picker:        p,
		logger:        logger,
		medicinesFile: medicinesFile,
		tasks:         make(map[string]*taskRecord),
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/prescription_recognition", s.handleRecognize)
	mux.HandleFunc("/start_grasp", s.handleStartGrasp)
	mux.HandleFunc("/place_medicine_basket", s.handlePlaceBasket)
	mux.HandleFunc("/prescription_list", s.handlePrescriptionList)
	mux.HandleFunc("/task_status/", s.handleTaskStatus)
	return mux
}

// startTask registers a task record and runs fn on its own goroutine. The job
// runs on a background context because the request context dies the moment
// the handler returns.
func (s *Server) startTask(kind string, fn func(ctx context.Context) error) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.tasks[id] = &taskRecord{Status: StatusIncomplete}
	s.mu.Unlock()

	go func() {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		err := fn(context.Background())

		s.mu.Lock()
		defer s.mu.Unlock()
		rec := s.tasks[id]
		if err != nil {
			s.logger.Errorf("Task %s (%s) failed: %v", id, kind, err)
			rec.Status = StatusFailed
			rec.Detail = err.Error()
			return
		}
		rec.Status = StatusComplete
	}()
	return id
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := s.startTask("prescription recognition", func(ctx context.Context) error {
		names, err := s.picker.RecognizePrescription(ctx)
		if err != nil {
			return err
		}
		if err := s.writeMedicines(names); err != nil {
			return fmt.Errorf("persist medicine list: %w", err)
		}
		s.logger.Infof("Recognized %d medicines", len(names))
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (s *Server) handleStartGrasp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.readMedicines()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(names) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no medicines to pick; run prescription recognition first",
		})
		return
	}
	id := s.startTask("grasp", func(ctx context.Context) error {
		picked, err := s.picker.PickAll(ctx, names)
		if werr := s.writeMedicines(remaining(names, picked)); werr != nil {
			s.logger.Warnf("Rewrite medicine list: %v", werr)
		}
		return err
	})
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (s *Server) handlePlaceBasket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := s.startTask("basket placement", func(ctx context.Context) error {
		return s.picker.PlaceBasket(ctx)
	})
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (s *Server) handlePrescriptionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.readMedicines()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"medicines": names})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/task_status/")

	s.mu.Lock()
	rec, found := s.tasks[id]
	var status, detail string
	if found {
		status, detail = rec.Status, rec.Detail
	}
	s.mu.Unlock()
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	resp := map[string]string{"task_id": id, "status": status}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, http.StatusOK, resp)
}

// readMedicines returns the persisted prescription list. A missing file is an
// empty list, not an error.
func (s *Server) readMedicines() ([]string, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	data, err := os.ReadFile(s.medicinesFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read medicine list: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (s *Server) writeMedicines(names []string) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return os.WriteFile(s.medicinesFile, []byte(b.String()), 0o644)
}

// remaining returns all minus one occurrence of each picked name, preserving
// order. Duplicate prescriptions keep their unpicked copies.
func remaining(all, picked []string) []string {
	taken := make(map[string]int, len(picked))
	for _, n := range picked {
		taken[n]++
	}
	var rest []string
	for _, n := range all {
		if taken[n] > 0 {
			taken[n]--
			continue
		}
		rest = append(rest, n)
	}
	return rest
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
