//go:build !profile

package prof

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestStub(t *testing.T) {
	if Enabled {
		t.Fatal("Enabled = true without the profile tag")
	}

	path := filepath.Join(t.TempDir(), "cpu.prof")
	s, err := Start(Config{CPU: path, Heap: path})
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Stat() error = %v, want not exist", err)
	}

	mux := http.NewServeMux()
	Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /debug/pprof/ = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
