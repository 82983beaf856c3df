package guetzli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func testResourceServer(t *testing.T) (*httptest.Server, *JobCoordinator) {
	t.Helper()
	coord, _ := testCoordinator(t)
	res := NewResource(coord)
	r := chi.NewRouter()
	res.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, coord
}

func TestResource_Submit_Created(t *testing.T) {
	srv, _ := testResourceServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/image", bytes.NewReader(make([]byte, 100)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Guetzli-Img-Name", "photo.jpg")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		t.Fatal("expected Location header")
	}
}

func TestResource_Submit_TooLarge(t *testing.T) {
	srv, _ := testResourceServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/image", bytes.NewReader(make([]byte, 9*1024*1024)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.ContentLength = 9 * 1024 * 1024

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestResource_Submit_UnsupportedType(t *testing.T) {
	srv, _ := testResourceServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/image", bytes.NewReader([]byte("abc")))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "image/gif")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestResource_List(t *testing.T) {
	srv, coord := testResourceServer(t)

	_, err := coord.Submit(context.Background(), bytes.NewReader([]byte("x")), 1, "image/jpeg", "a.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, err := http.Get(srv.URL + "/image")
	if err != nil {
		t.Fatalf("GET /image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.IDs) != 1 {
		t.Fatalf("expected 1 id, got %d", len(body.IDs))
	}
}

func TestResource_Meta_NotFound(t *testing.T) {
	srv, _ := testResourceServer(t)

	resp, err := http.Get(srv.URL + "/image/does-not-exist/meta")
	if err != nil {
		t.Fatalf("GET meta: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestResource_Meta_ContentType(t *testing.T) {
	srv, coord := testResourceServer(t)
	id, err := coord.Submit(context.Background(), bytes.NewReader([]byte("x")), 1, "image/jpeg", "a.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, err := http.Get(srv.URL + "/image/" + id + "/meta")
	if err != nil {
		t.Fatalf("GET meta: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
}

func TestResource_Target_NotReadyBeforeTransformed(t *testing.T) {
	srv, coord := testResourceServer(t)
	id, err := coord.Submit(context.Background(), bytes.NewReader([]byte("x")), 1, "image/jpeg", "a.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The job runs asynchronously: check the target only while the entry
	// has not yet reached transformed. If the transform has already
	// finished, the not-ready window is gone and the test skips.
	meta, err := coord.GetMeta(id)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if meta.Status == StatusTransformed {
		waitForStatus(t, coord, id, StatusTransformed, 2*time.Second)
		t.Skip("transform completed before the race window; covered by TestJobCoordinator_GetTarget_NotReadyUntilTransformed instead")
	}

	resp, err := http.Get(srv.URL + "/image/" + id + "/target")
	if err != nil {
		t.Fatalf("GET target: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestResource_Source_DownloadHeader(t *testing.T) {
	srv, coord := testResourceServer(t)
	id, err := coord.Submit(context.Background(), bytes.NewReader([]byte("raw bytes")), 9, "image/jpeg", "photo.jpg")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, err := http.Get(srv.URL + "/image/" + id + "/source?download=true")
	if err != nil {
		t.Fatalf("GET source: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	want := `attachment; filename="photo.jpg"`
	if got := resp.Header.Get("Content-Disposition"); got != want {
		t.Errorf("Content-Disposition: got %q, want %q", got, want)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type: got %q, want image/jpeg", ct)
	}
}

