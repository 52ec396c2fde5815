// Package opensearch implements a history.Sink backed by OpenSearch's HTTP
// document API. There is no ecosystem OpenSearch client in the retrieved
// corpus, so this talks to the REST _doc endpoint directly over net/http --
// a deliberate stdlib fallback, not an oversight.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kestrux/supervisor/internal/history"
)

// Sink sends events to OpenSearch via HTTP. It constructs the URL as
// baseURL + "/" + index + "/_doc" and POSTs a JSON body.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

// New builds an OpenSearch sink targeting baseURL/index.
func New(baseURL, index string) *Sink {
	return &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
}

// Send implements history.Sink.
func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink: status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the sink holds no resources beyond a pooled http.Client.
func (s *Sink) Close() error { return nil }
