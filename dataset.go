package lumetric

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

const datasetsPath = "/api/public/datasets"

// Dataset is a named collection of input/expected-output items used for
// evaluation. Item insertion deduplicates by content.
type Dataset struct {
	client *Client

	id          string
	name        string
	description string

	mu   sync.Mutex
	seen map[string]struct{} // content digests already inserted from this process
}

// DatasetItem is a single input/expected-output pair in a dataset.
type DatasetItem struct {
	ID             string         `json:"id,omitempty"`
	Input          any            `json:"input"`
	ExpectedOutput any            `json:"expectedOutput,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SourceTraceID  string         `json:"sourceTraceId,omitempty"`
}

type datasetPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ID returns the dataset ID.
func (d *Dataset) ID() string {
	return d.id
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// GetOrCreateDataset fetches the dataset with the given name, creating it
// when it does not exist yet. The returned Dataset keeps its dedup state
// for the lifetime of the client, so repeated lookups of the same name
// share one digest set.
func (c *Client) GetOrCreateDataset(ctx context.Context, name, description string) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("lumetric: dataset name is required")
	}

	if cached, ok := c.datasets.Load(name); ok {
		return cached.(*Dataset), nil
	}

	var payload datasetPayload
	status, err := c.request(ctx, http.MethodGet, datasetsPath+"?name="+url.QueryEscape(name), nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("lumetric: failed to fetch dataset %q: %w", name, err)
	}

	if status == http.StatusNotFound {
		body := map[string]any{"name": name, "description": description}
		status, err = c.request(ctx, http.MethodPost, datasetsPath, body, &payload)
		if err != nil {
			return nil, fmt.Errorf("lumetric: failed to create dataset %q: %w", name, err)
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("lumetric: create dataset %q: unexpected status %d", name, status)
		}
	} else if status < 200 || status >= 300 {
		return nil, fmt.Errorf("lumetric: fetch dataset %q: unexpected status %d", name, status)
	}

	dataset := &Dataset{
		client:      c,
		id:          payload.ID,
		name:        payload.Name,
		description: payload.Description,
		seen:        make(map[string]struct{}),
	}
	if dataset.name == "" {
		dataset.name = name
	}

	actual, _ := c.datasets.LoadOrStore(name, dataset)
	return actual.(*Dataset), nil
}

// Insert adds items to the dataset, silently skipping items whose content
// has already been inserted through this dataset handle. The backend
// applies the same content dedup to anything that slips through.
func (d *Dataset) Insert(ctx context.Context, items []DatasetItem) error {
	if len(items) == 0 {
		return nil
	}

	fresh := make([]DatasetItem, 0, len(items))
	digests := make([]string, 0, len(items))

	d.mu.Lock()
	for _, item := range items {
		digest, err := itemDigest(item)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("lumetric: failed to digest dataset item: %w", err)
		}
		if _, dup := d.seen[digest]; dup {
			continue
		}
		// Dedup within the batch itself as well.
		d.seen[digest] = struct{}{}
		fresh = append(fresh, item)
		digests = append(digests, digest)
	}
	d.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	body := map[string]any{"items": fresh}
	status, err := d.client.request(ctx, http.MethodPost, datasetsPath+"/"+d.id+"/items", body, nil)
	if err != nil || status < 200 || status >= 300 {
		// Roll the digests back so a retry can resend them.
		d.mu.Lock()
		for _, digest := range digests {
			delete(d.seen, digest)
		}
		d.mu.Unlock()
		if err != nil {
			return fmt.Errorf("lumetric: failed to insert dataset items: %w", err)
		}
		return fmt.Errorf("lumetric: insert dataset items: unexpected status %d", status)
	}

	return nil
}

// Items returns all stored items, paging through the backend.
func (d *Dataset) Items(ctx context.Context) ([]DatasetItem, error) {
	const pageSize = 100

	var all []DatasetItem
	for page := 1; ; page++ {
		path := fmt.Sprintf("%s/%s/items?page=%d&size=%d", datasetsPath, d.id, page, pageSize)

		var payload struct {
			Items []DatasetItem `json:"items"`
		}
		status, err := d.client.request(ctx, http.MethodGet, path, nil, &payload)
		if err != nil {
			return nil, fmt.Errorf("lumetric: failed to list dataset items: %w", err)
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("lumetric: list dataset items: unexpected status %d", status)
		}

		all = append(all, payload.Items...)
		if len(payload.Items) < pageSize {
			return all, nil
		}
	}
}

// itemDigest computes a content digest over the fields that define item
// identity. encoding/json sorts map keys, so the digest is deterministic.
func itemDigest(item DatasetItem) (string, error) {
	content := DatasetItem{
		Input:          item.Input,
		ExpectedOutput: item.ExpectedOutput,
		Metadata:       item.Metadata,
	}

	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
