package directory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"rfqdesk/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestGetBrandsScrollAllWithRetry(t *testing.T) {
	attempt := 0

	cfg, _ := config.Load()
	cfg.DirectoryAPIToken = "test"
	cfg.DirectoryAPIBaseURL = "https://example.test/api/v1"
	cfg.DirectoryRateLimitRPS = 1000

	client := NewClient(cfg)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/api/v1/brand/scroll" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test" {
				t.Fatalf("authorization=%q", got)
			}
			attempt++
			if attempt == 1 {
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Body:       io.NopCloser(strings.NewReader(`{"error":"boom"}`)),
					Header:     make(http.Header),
				}, nil
			}

			payload := map[string]any{"success": true, "data": map[string]any{"brands": []map[string]any{}, "scrollId": nil}}
			if attempt == 2 {
				payload = map[string]any{"success": true, "data": map[string]any{"brands": []map[string]any{{"id": 1, "name": "ABB", "aliases": []any{"abb"}}}, "scrollId": "next"}}
			}
			if attempt == 3 {
				payload = map[string]any{"success": true, "data": map[string]any{"brands": []map[string]any{{"id": 2, "name": "Legrand", "supplier": "Legrand France", "email": "pro@legrand.example"}}, "scrollId": nil}}
			}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	brands, err := client.GetBrandsScrollAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(brands) != 2 {
		t.Fatalf("len=%d", len(brands))
	}
	if brands[0].Name != "ABB" || len(brands[0].Aliases) != 1 {
		t.Fatalf("brand0=%+v", brands[0])
	}
	if brands[1].Supplier == nil || *brands[1].Supplier != "Legrand France" {
		t.Fatalf("brand1=%+v", brands[1])
	}
}

func TestFetchJSONMissingToken(t *testing.T) {
	cfg, _ := config.Load()
	cfg.DirectoryAPIToken = ""
	client := NewClient(cfg)
	if _, err := client.GetBrandsScrollAll(context.Background()); err == nil {
		t.Fatal("expected error without token")
	}
}
