// Package gateways provides implementations of domain gateway interfaces.
package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
)

// OSV API endpoints
const (
	DefaultOSVQueryURL = "https://api.osv.dev/v1/query"
	DefaultOSVBatchURL = "https://api.osv.dev/v1/querybatch"
	DefaultOSVVulnsURL = "https://api.osv.dev/v1/vulns"
)

const (
	// Initial backoff duration between retries
	initialBackoff = 250 * time.Millisecond
	// Max backoff duration
	maxBackoff = 4 * time.Second
	// Concurrent advisory fetches when hydrating batch results
	hydrateWorkers = 8
)

// OSVConfig configures the OSV gateway
type OSVConfig struct {
	QueryURL   string
	BatchURL   string
	VulnsURL   string
	Timeout    time.Duration
	MaxRetries int
}

// osvGateway queries the OSV database over its JSON HTTP API
type osvGateway struct {
	queryURL   string
	batchURL   string
	vulnsURL   string
	maxRetries int
	httpClient *http.Client
}

var _ gateways.VulnerabilityFeed = (*osvGateway)(nil)

// NewOSVGateway creates a new OSV gateway
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewOSVGateway(cfg OSVConfig) *osvGateway {
	if cfg.QueryURL == "" {
		cfg.QueryURL = DefaultOSVQueryURL
	}
	if cfg.BatchURL == "" {
		cfg.BatchURL = DefaultOSVBatchURL
	}
	if cfg.VulnsURL == "" {
		cfg.VulnsURL = DefaultOSVVulnsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &osvGateway{
		queryURL:   cfg.QueryURL,
		batchURL:   cfg.BatchURL,
		vulnsURL:   strings.TrimSuffix(cfg.VulnsURL, "/"),
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Query returns the advisories affecting one dependency
func (g *osvGateway) Query(ctx context.Context, dep entities.DependencyInfo) ([]entities.Vulnerability, error) {
	payload := OSVQueryRequest{
		Package: OSVPackage{
			Name:      dep.Name,
			Ecosystem: string(dep.Ecosystem),
		},
		Version: dep.Version,
	}

	var osvResp OSVQueryResponse
	if err := g.postJSON(ctx, g.queryURL, payload, &osvResp); err != nil {
		return nil, err
	}

	vulns := make([]entities.Vulnerability, 0, len(osvResp.Vulns))
	for _, v := range osvResp.Vulns {
		vulns = append(vulns, mapOSVVulnerability(dep, v))
	}
	return vulns, nil
}

// QueryBatch resolves many dependencies with one querybatch call. The batch
// endpoint only returns advisory ids, so each distinct id is then fetched
// from the vulns endpoint.
func (g *osvGateway) QueryBatch(ctx context.Context, deps []entities.DependencyInfo) (map[string][]entities.Vulnerability, error) {
	if len(deps) == 0 {
		return map[string][]entities.Vulnerability{}, nil
	}

	payload := OSVBatchRequest{Queries: make([]OSVQueryRequest, 0, len(deps))}
	for _, dep := range deps {
		payload.Queries = append(payload.Queries, OSVQueryRequest{
			Package: OSVPackage{Name: dep.Name, Ecosystem: string(dep.Ecosystem)},
			Version: dep.Version,
		})
	}

	var batchResp OSVBatchResponse
	if err := g.postJSON(ctx, g.batchURL, payload, &batchResp); err != nil {
		return nil, err
	}
	if len(batchResp.Results) != len(deps) {
		return nil, fmt.Errorf("OSV batch returned %d results for %d queries", len(batchResp.Results), len(deps))
	}

	var ids []string
	seen := make(map[string]bool)
	for _, res := range batchResp.Results {
		for _, v := range res.Vulns {
			if !seen[v.ID] {
				seen[v.ID] = true
				ids = append(ids, v.ID)
			}
		}
	}

	advisories, err := g.fetchAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]entities.Vulnerability, len(deps))
	for i, dep := range deps {
		for _, ref := range batchResp.Results[i].Vulns {
			adv, ok := advisories[ref.ID]
			if !ok {
				continue
			}
			out[dep.Key()] = append(out[dep.Key()], mapOSVVulnerability(dep, adv))
		}
	}
	return out, nil
}

func (g *osvGateway) fetchAll(ctx context.Context, ids []string) (map[string]OSVVulnerability, error) {
	out := make(map[string]OSVVulnerability, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	p := pool.NewWithResults[OSVVulnerability]().
		WithContext(ctx).
		WithMaxGoroutines(hydrateWorkers)
	for _, id := range ids {
		id := id
		p.Go(func(ctx context.Context) (OSVVulnerability, error) {
			return g.fetchVulnerability(ctx, id)
		})
	}

	vulns, err := p.Wait()
	if err != nil {
		return nil, err
	}
	for _, v := range vulns {
		out[v.ID] = v
	}
	return out, nil
}

// fetchVulnerability retrieves the full advisory record for an id
func (g *osvGateway) fetchVulnerability(ctx context.Context, id string) (OSVVulnerability, error) {
	var v OSVVulnerability
	target := g.vulnsURL + "/" + url.PathEscape(id)

	resp, err := g.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return v, fmt.Errorf("OSV vuln request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return v, fmt.Errorf("OSV vuln %s returned status %d", id, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("failed to parse OSV vuln %s: %w", id, err)
	}
	if v.ID == "" {
		v.ID = id
	}
	return v, nil
}

func (g *osvGateway) postJSON(ctx context.Context, target string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := g.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("OSV API request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("OSV API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse OSV response: %w", err)
	}
	return nil
}

// isRetryableError checks if an HTTP status code is retryable
func isRetryableError(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

// calculateBackoff returns the backoff duration for a retry attempt
func calculateBackoff(attempt int) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// doWithRetry executes a request with exponential backoff. The request is
// rebuilt for every attempt so its body can be replayed.
func (g *osvGateway) doWithRetry(ctx context.Context, newRequest func() (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt - 1)):
			}
		}

		req, reqErr := newRequest()
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}

		resp, err = g.httpClient.Do(req)
		if err != nil {
			// Network errors are retryable
			if attempt < g.maxRetries {
				continue
			}
			return nil, err
		}

		if !isRetryableError(resp.StatusCode) || attempt == g.maxRetries {
			return resp, nil
		}

		//nolint:errcheck,gosec // G104: Best effort close before retry
		resp.Body.Close()
	}

	return resp, err
}

// mapOSVVulnerability converts an OSV advisory into the domain model
func mapOSVVulnerability(dep entities.DependencyInfo, v OSVVulnerability) entities.Vulnerability {
	score := maxCVSS(v)

	severity := entities.SeverityFromCVSS(score)
	if label := severityLabel(dep, v); label != "" {
		severity = entities.ParseSeverity(label)
	}

	fixed, affected := affectedRanges(dep, v)

	published, _ := time.Parse(time.RFC3339, v.Published)
	modified, _ := time.Parse(time.RFC3339, v.Modified)

	return entities.Vulnerability{
		PackageName:      dep.Name,
		Version:          dep.Version,
		Ecosystem:        dep.Ecosystem,
		VulnerabilityID:  preferredID(v),
		Title:            v.Summary,
		Description:      v.Details,
		Severity:         severity,
		CVSSScore:        score,
		AffectedVersions: affected,
		FixedInVersion:   fixed,
		PublishedAt:      published,
		LastUpdated:      modified,
		Exploitability:   entities.ExploitabilityFromCVSS(score),
		Status:           entities.StatusOpen,
	}
}

// preferredID picks a CVE alias, then a GHSA alias, then the OSV id
func preferredID(v OSVVulnerability) string {
	candidates := append(append([]string{}, v.Aliases...), v.ID)
	for _, prefix := range []string{"CVE-", "GHSA-"} {
		for _, c := range candidates {
			if strings.HasPrefix(c, prefix) {
				return c
			}
		}
	}
	return v.ID
}

// maxCVSS returns the highest score across every severity entry, top level
// and per affected package
func maxCVSS(v OSVVulnerability) float64 {
	var best float64
	consider := func(entries []OSVSeverity) {
		for _, s := range entries {
			if score := cvssScore(s.Score); score > best {
				best = score
			}
		}
	}
	consider(v.Severity)
	for _, a := range v.Affected {
		consider(a.Severity)
	}
	return best
}

// severityLabel reads database_specific.severity from the advisory or from
// the affected entry for the queried package
func severityLabel(dep entities.DependencyInfo, v OSVVulnerability) string {
	if label := gjson.GetBytes(v.DatabaseSpecific, "severity").String(); label != "" {
		return label
	}
	for _, a := range v.Affected {
		if !matchesPackage(dep, a.Package) {
			continue
		}
		if label := gjson.GetBytes(a.DatabaseSpecific, "severity").String(); label != "" {
			return label
		}
	}
	return ""
}

// affectedRanges returns the first fixed version and a range expression
// for the affected entries matching the queried package
func affectedRanges(dep entities.DependencyInfo, v OSVVulnerability) (string, string) {
	var fixed string
	var exprs []string

	for _, a := range v.Affected {
		if !matchesPackage(dep, a.Package) {
			continue
		}
		for _, r := range a.Ranges {
			if r.Type == "GIT" {
				continue
			}
			var introduced string
			for _, e := range r.Events {
				switch {
				case e.Introduced != "":
					introduced = e.Introduced
				case e.Fixed != "":
					if fixed == "" {
						fixed = e.Fixed
					}
					exprs = append(exprs, rangeExpr(introduced, "<"+e.Fixed))
					introduced = ""
				case e.LastAffected != "":
					exprs = append(exprs, rangeExpr(introduced, "<="+e.LastAffected))
					introduced = ""
				}
			}
			if introduced != "" {
				exprs = append(exprs, rangeExpr(introduced, ""))
			}
		}
	}
	return fixed, strings.Join(exprs, " || ")
}

func rangeExpr(introduced, upper string) string {
	if introduced == "" || introduced == "0" {
		if upper == "" {
			return ">=0"
		}
		return upper
	}
	if upper == "" {
		return ">=" + introduced
	}
	return ">=" + introduced + ", " + upper
}

func matchesPackage(dep entities.DependencyInfo, p OSVPackage) bool {
	return strings.EqualFold(p.Name, dep.Name) &&
		(p.Ecosystem == "" || strings.EqualFold(p.Ecosystem, string(dep.Ecosystem)))
}

// OSV API request/response types

// OSVQueryRequest represents a query to the OSV API for vulnerability information.
type OSVQueryRequest struct {
	Package OSVPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

// OSVBatchRequest is the body of a querybatch call
type OSVBatchRequest struct {
	Queries []OSVQueryRequest `json:"queries"`
}

// OSVPackage identifies a software package in a specific ecosystem.
type OSVPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

// OSVQueryResponse contains the vulnerability results from the OSV API.
type OSVQueryResponse struct {
	Vulns []OSVVulnerability `json:"vulns"`
}

// OSVBatchResponse holds one result per query, in query order
type OSVBatchResponse struct {
	Results []OSVBatchResult `json:"results"`
}

// OSVBatchResult lists the advisory ids matching one query
type OSVBatchResult struct {
	Vulns []OSVVulnRef `json:"vulns"`
}

// OSVVulnRef is the abbreviated advisory returned by querybatch
type OSVVulnRef struct {
	ID       string `json:"id"`
	Modified string `json:"modified"`
}

// OSVVulnerability represents a single vulnerability from the OSV database.
type OSVVulnerability struct {
	ID               string          `json:"id"`
	Summary          string          `json:"summary"`
	Details          string          `json:"details"`
	Aliases          []string        `json:"aliases,omitempty"`
	Published        string          `json:"published,omitempty"`
	Modified         string          `json:"modified,omitempty"`
	Severity         []OSVSeverity   `json:"severity,omitempty"`
	Affected         []OSVAffected   `json:"affected,omitempty"`
	DatabaseSpecific json.RawMessage `json:"database_specific,omitempty"`
}

// OSVSeverity contains severity scoring information for a vulnerability.
type OSVSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// OSVAffected describes the affected versions of one package
type OSVAffected struct {
	Package          OSVPackage      `json:"package"`
	Severity         []OSVSeverity   `json:"severity,omitempty"`
	Ranges           []OSVRange      `json:"ranges,omitempty"`
	Versions         []string        `json:"versions,omitempty"`
	DatabaseSpecific json.RawMessage `json:"database_specific,omitempty"`
}

// OSVRange is an ordered list of version events
type OSVRange struct {
	Type   string     `json:"type"`
	Events []OSVEvent `json:"events"`
}

// OSVEvent marks where a range starts or ends
type OSVEvent struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}
