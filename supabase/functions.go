// ABOUTME: Supabase Edge Function invocation
// ABOUTME: Calls /functions/v1/{name} with the service role key
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Functions invokes edge functions of one project.
type Functions struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewFunctions(projectURL, serviceKey string, httpClient *http.Client) *Functions {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Functions{
		baseURL:    strings.TrimRight(projectURL, "/"),
		serviceKey: serviceKey,
		http:       httpClient,
	}
}

// Invoke POSTs body as JSON to the named function and decodes the reply
// into out when out is non-nil.
func (f *Functions) Invoke(ctx context.Context, name string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode function body: %w", err)
	}

	endpoint := f.baseURL + "/functions/v1/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.serviceKey)
	req.Header.Set("apikey", f.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("edge function %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("edge function %s returned status %d: %s", name, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}
