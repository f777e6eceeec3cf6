package testutil

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/banshee-data/tmsnav/internal/monitoring"
)

func TestAssertStatusCode_Matching(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	if fakeT.Failed() {
		t.Error("expected no failure for matching status codes")
	}
}

func TestServeAndDecodeJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	})
	rec := Serve(h, http.MethodGet, "/debug/medimg")
	AssertStatusCode(t, rec.Code, http.StatusOK)

	var body map[string]string
	DecodeJSON(t, rec, &body)
	if body["path"] != "/debug/medimg" {
		t.Errorf("path = %q", body["path"])
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/jog")
	if req.Method != http.MethodPost || req.URL.Path != "/jog" {
		t.Errorf("got %s %s", req.Method, req.URL.Path)
	}
}

func TestMuteLogs(t *testing.T) {
	called := false
	orig := monitoring.Logf
	monitoring.SetLogger(func(string, ...any) { called = true })
	defer func() { monitoring.Logf = orig }()

	t.Run("muted", func(t *testing.T) {
		MuteLogs(t)
		monitoring.Logf("hidden")
	})
	if called {
		t.Error("muted logger should not reach the previous one")
	}
	monitoring.Logf("visible")
	if !called {
		t.Error("logger should be restored after the subtest")
	}
}

func TestCaptureLogs(t *testing.T) {
	lines := CaptureLogs(t)
	monitoring.For("robot").Printf("jog %s", "left")
	got := lines()
	if len(got) != 1 || got[0] != "robot: jog left" {
		t.Errorf("got %q", got)
	}
}

func TestNewFormRequest(t *testing.T) {
	req := NewFormRequest("/debug/robot-jog", url.Values{"direction": {"left"}})
	if err := req.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if req.FormValue("direction") != "left" || req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("got %q from %s", req.FormValue("direction"), req.RemoteAddr)
	}
}
