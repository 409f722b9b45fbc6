// Package cebridge talks to the external Complex Editor bridge service that
// maps part numbers to externally-managed complex identifiers and renders
// the binary test-database artifact. The engine depends only on the Client
// interface; tests substitute a fake.
package cebridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotReady is returned when the bridge answers its health check but
// reports it cannot serve exports yet. Callers should retry later rather
// than treat this as a missing-mapping condition.
var ErrNotReady = fmt.Errorf("cebridge: bridge not ready")

// ReadyState is the bridge's readiness report.
type ReadyState struct {
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Headless bool   `json:"headless"`
	Detail   string `json:"last_ready_error"`
}

// ExportResult describes a completed MDB export.
type ExportResult struct {
	ExportedCount int    `json:"exported_count"`
	ExportPath    string `json:"export_path"`
	TraceID       string `json:"trace_id"`
}

// Client is the capability the export builder needs from the bridge.
type Client interface {
	// WaitUntilReady performs a bounded readiness check. A transport
	// failure is returned as an error; a reachable-but-not-ready bridge
	// returns ErrNotReady.
	WaitUntilReady(ctx context.Context) (ReadyState, error)

	// LookupComplexIDs maps part numbers onto complex ids. Numbers the
	// bridge does not know come back in unmapped, not as an error.
	LookupComplexIDs(ctx context.Context, partNumbers []string) (mapped map[string]int64, unmapped []string, err error)

	// ExportMDB asks the bridge to write the binary test database for the
	// given complex ids into outDir under filename.
	ExportMDB(ctx context.Context, ids []int64, outDir, filename string) (ExportResult, error)
}

// HTTPClient is the production Client speaking the bridge's REST surface.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a bridge client. timeout bounds every call,
// including the readiness check.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) WaitUntilReady(ctx context.Context) (ReadyState, error) {
	var state ReadyState
	if err := c.do(ctx, http.MethodGet, "/admin/health", nil, &state); err != nil {
		return ReadyState{}, err
	}
	if !state.Ready {
		if state.Detail != "" {
			return state, fmt.Errorf("%w: %s", ErrNotReady, state.Detail)
		}
		return state, ErrNotReady
	}
	return state, nil
}

// complexSummary is one row of a /complexes/search response.
type complexSummary struct {
	ID      int64    `json:"id"`
	PN      string   `json:"pn"`
	Aliases []string `json:"aliases"`
}

func (c *HTTPClient) LookupComplexIDs(ctx context.Context, partNumbers []string) (map[string]int64, []string, error) {
	mapped := make(map[string]int64, len(partNumbers))
	var unmapped []string
	for _, pn := range partNumbers {
		target := strings.ToLower(strings.TrimSpace(pn))
		if target == "" {
			continue
		}
		q := url.Values{"pn": {strings.TrimSpace(pn)}, "limit": {"20"}}
		var matches []complexSummary
		if err := c.do(ctx, http.MethodGet, "/complexes/search?"+q.Encode(), nil, &matches); err != nil {
			return nil, nil, err
		}
		if id, ok := pickExactComplexID(matches, target); ok {
			mapped[pn] = id
		} else {
			unmapped = append(unmapped, pn)
		}
	}
	return mapped, unmapped, nil
}

// pickExactComplexID accepts a match only when exactly one search hit equals
// the target part number (or one of its aliases) case-insensitively.
// Ambiguous and fuzzy-only results count as unmapped.
func pickExactComplexID(matches []complexSummary, target string) (int64, bool) {
	var exact []complexSummary
	for _, m := range matches {
		if strings.ToLower(strings.TrimSpace(m.PN)) == target {
			exact = append(exact, m)
			continue
		}
		for _, alias := range m.Aliases {
			if strings.ToLower(strings.TrimSpace(alias)) == target {
				exact = append(exact, m)
				break
			}
		}
	}
	if len(exact) == 1 && exact[0].ID != 0 {
		return exact[0].ID, true
	}
	return 0, false
}

func (c *HTTPClient) ExportMDB(ctx context.Context, ids []int64, outDir, filename string) (ExportResult, error) {
	if len(ids) == 0 {
		return ExportResult{}, fmt.Errorf("cebridge: export needs at least one complex id")
	}
	name := strings.TrimSpace(filename)
	if !strings.HasSuffix(strings.ToLower(name), ".mdb") {
		name += ".mdb"
	}
	req := struct {
		PNs           []string `json:"pns"`
		CompIDs       []int64  `json:"comp_ids"`
		OutDir        string   `json:"out_dir"`
		MdbName       string   `json:"mdb_name"`
		RequireLinked bool     `json:"require_linked"`
	}{PNs: []string{}, CompIDs: ids, OutDir: outDir, MdbName: name, RequireLinked: true}

	var resp ExportResult
	if err := c.do(ctx, http.MethodPost, "/exports/mdb", req, &resp); err != nil {
		return ExportResult{}, err
	}
	return resp, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-Id", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		if detail.Detail != "" {
			return fmt.Errorf("bridge %s %s: HTTP %d: %s", method, path, resp.StatusCode, detail.Detail)
		}
		return fmt.Errorf("bridge %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
