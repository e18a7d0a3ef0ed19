// Package main provides a CLI tool for validating salesviz server endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"
)

type endpoint struct {
	path        string
	method      string
	contentType string
	contains    []string
	// statuses accepted besides 200
	statuses []int
}

var staticEndpoints = []endpoint{
	{path: "/api/health", method: "GET", contentType: "application/json", contains: []string{`"status":"ok"`}},
	{path: "/api/version", method: "GET", contentType: "application/json", contains: []string{`"version"`}},
	{path: "/api/summary", method: "GET", contentType: "application/json", contains: []string{`"total_revenue"`}},
	{path: "/api/files", method: "GET", contentType: "application/json"},
	{path: "/files", method: "GET", contentType: "text/html", contains: []string{"Tệp dữ liệu"}},
	{path: "/metrics", method: "GET", contentType: "text/plain", contains: []string{"salesviz_dataset_loads_total"}},
}

type chartInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// chartEndpoints expands the catalog into the JSON, page and SVG routes of
// every chart.
func chartEndpoints(charts []chartInfo) []endpoint {
	var out []endpoint
	for _, c := range charts {
		out = append(out,
			endpoint{path: "/api/charts/" + c.ID, method: "GET", contentType: "application/json",
				contains: []string{`"id":"` + c.ID + `"`}, statuses: []int{http.StatusUnprocessableEntity}},
			endpoint{path: "/charts/" + c.ID, method: "GET", contentType: "text/html", contains: []string{c.Title}},
			endpoint{path: "/charts/" + c.ID + "/chart.svg", method: "GET", contentType: "image/svg+xml",
				statuses: []int{http.StatusNotFound}},
		)
	}
	return out
}

type result struct {
	endpoint endpoint
	status   int
	duration time.Duration
	err      error
	body     string
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Base URL of the server to validate")
	verbose := flag.Bool("v", false, "Verbose output")
	timeout := flag.Int("timeout", 10, "Request timeout in seconds")
	flag.Parse()

	client := &http.Client{
		Timeout: time.Duration(*timeout) * time.Second,
	}

	fmt.Printf("Validating server at %s\n", *url)

	charts, err := fetchCatalog(client, *url)
	if err != nil {
		fmt.Printf("FAIL GET /api/charts\n     Error: %v\n", err)
		os.Exit(1)
	}
	endpoints := append(append([]endpoint(nil), staticEndpoints...), chartEndpoints(charts)...)
	fmt.Printf("Testing %d endpoints for %d charts...\n\n", len(endpoints), len(charts))

	var passed, failed int
	for _, ep := range endpoints {
		r := validateEndpoint(client, *url, ep)

		if r.err != nil {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Error: %v\n", r.err)
			continue
		}
		passed++
		if *verbose {
			fmt.Printf("PASS %s %s %d (%v)\n", ep.method, ep.path, r.status, r.duration)
		}
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Results: %d passed, %d failed\n", passed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}

func fetchCatalog(client *http.Client, baseURL string) ([]chartInfo, error) {
	resp, err := client.Get(baseURL + "/api/charts")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var charts []chartInfo
	if err := json.NewDecoder(resp.Body).Decode(&charts); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(charts) == 0 {
		return nil, fmt.Errorf("empty chart catalog")
	}
	return charts, nil
}

func validateEndpoint(client *http.Client, baseURL string, ep endpoint) result {
	start := time.Now()

	req, err := http.NewRequest(ep.method, baseURL+ep.path, nil)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to read body: %w", err)}
	}

	r := result{
		endpoint: ep,
		status:   resp.StatusCode,
		duration: time.Since(start),
		body:     string(body),
	}

	if r.status != http.StatusOK {
		if !slices.Contains(ep.statuses, r.status) {
			r.err = fmt.Errorf("status %d (expected 200)", r.status)
		}
		// Accepted non-200 answers carry an explanation, not the content.
		return r
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, ep.contentType) {
		r.err = fmt.Errorf("wrong content type: got %q, expected %q", ct, ep.contentType)
		return r
	}

	if ep.contentType == "application/json" {
		var js any
		if err := json.Unmarshal(body, &js); err != nil {
			r.err = fmt.Errorf("invalid JSON: %w", err)
			return r
		}
	}

	for _, needle := range ep.contains {
		if !strings.Contains(r.body, needle) {
			r.err = fmt.Errorf("missing expected content: %q", needle)
			return r
		}
	}

	return r
}
