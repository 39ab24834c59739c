package cubecobra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientOptions{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
}

func TestFetchCube(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/my-cube" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "my-cube",
			"name": "Test Cube",
			"owner": "someone",
			"cards": [
				{"oracle_id": "oracle-1", "name": "Lightning Bolt", "type_line": "Instant"},
				{"name": "Homemade Card"}
			]
		}`))
	})

	cube, err := client.FetchCube(context.Background(), "my-cube")
	if err != nil {
		t.Fatalf("FetchCube failed: %v", err)
	}

	if cube.ID != "my-cube" {
		t.Errorf("ID = %q", cube.ID)
	}
	if cube.Name != "Test Cube" {
		t.Errorf("Name = %q", cube.Name)
	}
	if len(cube.Cards) != 2 {
		t.Fatalf("len(Cards) = %d, want 2", len(cube.Cards))
	}
	if got := cube.Cards[0].Key(); got != "oracle-1" {
		t.Errorf("Cards[0].Key() = %q, want oracle id", got)
	}
	if got := cube.Cards[1].Key(); got != "Homemade Card" {
		t.Errorf("Cards[1].Key() = %q, want name fallback", got)
	}
}

func TestFetchCubeFillsMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "No ID Cube", "cards": []}`))
	})

	cube, err := client.FetchCube(context.Background(), "some-id")
	if err != nil {
		t.Fatalf("FetchCube failed: %v", err)
	}
	if cube.ID != "some-id" {
		t.Errorf("ID = %q, want requested id", cube.ID)
	}
}

func TestFetchCubeNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchCube(context.Background(), "missing-cube")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if IsUnavailable(err) {
		t.Error("404 must not read as unavailable")
	}
}

func TestFetchCubeServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchCube(context.Background(), "flaky-cube")
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if !IsUnavailable(err) {
		t.Errorf("expected UnavailableError, got %v", err)
	}
	if IsNotFound(err) {
		t.Error("500 must not read as not-found")
	}
}

func TestFetchCubeRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchCube(context.Background(), "busy-cube")
	if !IsUnavailable(err) {
		t.Errorf("expected UnavailableError for 429, got %v", err)
	}
}

func TestFetchCubeNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(ClientOptions{
		BaseURL: server.URL,
		Timeout: time.Second,
	})

	_, err := client.FetchCube(context.Background(), "unreachable-cube")
	if !IsUnavailable(err) {
		t.Errorf("expected UnavailableError for network failure, got %v", err)
	}
}

func TestFetchCubeSingleAttempt(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, _ = client.FetchCube(context.Background(), "flaky-cube")
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no internal retries)", attempts)
	}
}

func TestCardKeysDeduplicates(t *testing.T) {
	cube := &Cube{
		ID: "c",
		Cards: []CubeCard{
			{OracleID: "oracle-1", Name: "Lightning Bolt"},
			{OracleID: "oracle-1", Name: "Lightning Bolt"},
			{Name: "Homemade Card"},
			{},
		},
	}

	keys := cube.CardKeys()
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	if _, ok := keys["oracle-1"]; !ok {
		t.Error("missing oracle-1 key")
	}
	if _, ok := keys["Homemade Card"]; !ok {
		t.Error("missing name-fallback key")
	}
	if _, ok := keys[""]; ok {
		t.Error("empty key must be skipped")
	}
}
