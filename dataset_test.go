package lumetric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDatasetBackend is a minimal in-memory stand-in for the dataset REST API.
type fakeDatasetBackend struct {
	mu          sync.Mutex
	datasets    map[string]string // name -> id
	items       map[string][]DatasetItem
	insertCalls int
	getCalls    int
}

func newFakeDatasetBackend(t *testing.T) (*fakeDatasetBackend, *httptest.Server) {
	t.Helper()

	backend := &fakeDatasetBackend{
		datasets: make(map[string]string),
		items:    make(map[string][]DatasetItem),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(datasetsPath, func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		defer backend.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			backend.getCalls++
			name := r.URL.Query().Get("name")
			id, ok := backend.datasets[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"id": id, "name": name})
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			id := fmt.Sprintf("ds-%d", len(backend.datasets)+1)
			backend.datasets[body.Name] = id
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": id, "name": body.Name})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(datasetsPath+"/", func(w http.ResponseWriter, r *http.Request) {
		backend.mu.Lock()
		defer backend.mu.Unlock()

		rest := strings.TrimPrefix(r.URL.Path, datasetsPath+"/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[1] != "items" {
			http.NotFound(w, r)
			return
		}
		datasetID := parts[0]

		switch r.Method {
		case http.MethodPost:
			backend.insertCalls++
			var body struct {
				Items []DatasetItem `json:"items"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for i, item := range body.Items {
				item.ID = fmt.Sprintf("%s-item-%d", datasetID, len(backend.items[datasetID])+i+1)
				backend.items[datasetID] = append(backend.items[datasetID], item)
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			size, _ := strconv.Atoi(r.URL.Query().Get("size"))
			if page < 1 {
				page = 1
			}
			stored := backend.items[datasetID]
			start := (page - 1) * size
			if start > len(stored) {
				start = len(stored)
			}
			end := start + size
			if end > len(stored) {
				end = len(stored)
			}
			json.NewEncoder(w).Encode(map[string]any{"items": stored[start:end]})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend, server
}

func newDatasetTestClient(t *testing.T, host string) *Client {
	t.Helper()
	client := New(Config{
		APIKey:        "test-api-key",
		Host:          host,
		FlushAt:       1000,
		FlushInterval: time.Hour,
	})
	t.Cleanup(client.Shutdown)
	return client
}

func TestClient_GetOrCreateDataset(t *testing.T) {
	t.Run("creates missing dataset", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "qa-benchmark", "QA eval set")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dataset.ID() == "" {
			t.Error("expected dataset ID from the backend")
		}
		if dataset.Name() != "qa-benchmark" {
			t.Errorf("expected name 'qa-benchmark', got '%s'", dataset.Name())
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if _, ok := backend.datasets["qa-benchmark"]; !ok {
			t.Error("expected dataset created on the backend")
		}
	})

	t.Run("returns existing dataset", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		backend.datasets["existing"] = "ds-42"
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "existing", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dataset.ID() != "ds-42" {
			t.Errorf("expected existing dataset ID, got '%s'", dataset.ID())
		}
	})

	t.Run("caches the handle per name", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		first, err := client.GetOrCreateDataset(context.Background(), "cached", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		callsAfterFirst := backend.getCalls
		backend.mu.Unlock()

		second, err := client.GetOrCreateDataset(context.Background(), "cached", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second {
			t.Error("expected the same dataset handle for the same name")
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if backend.getCalls != callsAfterFirst {
			t.Error("expected the second lookup to be served from cache")
		}
	})

	t.Run("requires a name", func(t *testing.T) {
		_, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		if _, err := client.GetOrCreateDataset(context.Background(), "", ""); err == nil {
			t.Error("expected an error for an empty dataset name")
		}
	})
}

func TestDataset_Insert(t *testing.T) {
	t.Run("inserts items", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "inserts", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		items := []DatasetItem{
			{Input: map[string]any{"question": "What is Go?"}, ExpectedOutput: "a language"},
			{Input: map[string]any{"question": "What is a goroutine?"}, ExpectedOutput: "a lightweight thread"},
		}
		if err := dataset.Insert(context.Background(), items); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if got := len(backend.items[dataset.ID()]); got != 2 {
			t.Errorf("expected 2 stored items, got %d", got)
		}
	})

	t.Run("silently deduplicates by content", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "dedup", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		items := []DatasetItem{
			{Input: map[string]any{"q": "one"}, ExpectedOutput: "1"},
			{Input: map[string]any{"q": "two"}, ExpectedOutput: "2"},
		}
		if err := dataset.Insert(context.Background(), items); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Same items again plus one new: only the new item is sent.
		again := append(items, DatasetItem{Input: map[string]any{"q": "three"}, ExpectedOutput: "3"})
		if err := dataset.Insert(context.Background(), again); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		stored := len(backend.items[dataset.ID()])
		backend.mu.Unlock()
		if stored != 3 {
			t.Errorf("expected 3 stored items after dedup, got %d", stored)
		}

		// A fully duplicate batch is skipped without touching the backend.
		backend.mu.Lock()
		callsBefore := backend.insertCalls
		backend.mu.Unlock()

		if err := dataset.Insert(context.Background(), items); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if backend.insertCalls != callsBefore {
			t.Error("expected no insert call for an all-duplicate batch")
		}
	})

	t.Run("deduplicates within a single batch", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "batch-dedup", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		item := DatasetItem{Input: map[string]any{"q": "dup"}, ExpectedOutput: "yes"}
		if err := dataset.Insert(context.Background(), []DatasetItem{item, item, item}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if got := len(backend.items[dataset.ID()]); got != 1 {
			t.Errorf("expected 1 stored item, got %d", got)
		}
	})

	t.Run("empty insert is a no-op", func(t *testing.T) {
		backend, server := newFakeDatasetBackend(t)
		client := newDatasetTestClient(t, server.URL)

		dataset, err := client.GetOrCreateDataset(context.Background(), "empty", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := dataset.Insert(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		backend.mu.Lock()
		defer backend.mu.Unlock()
		if backend.insertCalls != 0 {
			t.Error("expected no backend call for an empty insert")
		}
	})
}

func TestDataset_Items(t *testing.T) {
	backend, server := newFakeDatasetBackend(t)
	client := newDatasetTestClient(t, server.URL)

	dataset, err := client.GetOrCreateDataset(context.Background(), "paging", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// More than one page worth of items.
	stored := make([]DatasetItem, 0, 150)
	for i := 0; i < 150; i++ {
		stored = append(stored, DatasetItem{
			ID:    fmt.Sprintf("item-%d", i),
			Input: map[string]any{"q": fmt.Sprintf("question %d", i)},
		})
	}
	backend.mu.Lock()
	backend.items[dataset.ID()] = stored
	backend.mu.Unlock()

	items, err := dataset.Items(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 150 {
		t.Errorf("expected 150 items across pages, got %d", len(items))
	}
}

func TestItemDigest(t *testing.T) {
	a := DatasetItem{Input: map[string]any{"q": "x"}, ExpectedOutput: "y"}
	b := DatasetItem{Input: map[string]any{"q": "x"}, ExpectedOutput: "y", ID: "different-id"}
	c := DatasetItem{Input: map[string]any{"q": "x"}, ExpectedOutput: "z"}

	digestA, err := itemDigest(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	digestB, err := itemDigest(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	digestC, err := itemDigest(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if digestA != digestB {
		t.Error("expected digest to ignore the item ID")
	}
	if digestA == digestC {
		t.Error("expected different content to produce different digests")
	}
}
