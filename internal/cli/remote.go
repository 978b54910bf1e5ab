package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// RemoteOptions are the defaults for talking to a running opsassist-api.
type RemoteOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type remoteFlags struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func newRemoteCommand(defaults RemoteOptions) *cobra.Command {
	flags := &remoteFlags{client: defaults.HTTPClient}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call a running opsassist API server",
	}
	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	get := func(use, short, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return flags.call(cmd, http.MethodGet, path, nil)
			},
		}
	}

	var sessionID string
	var showSQL, showRows bool
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "POST /v1/ask",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]any{
				"question":         strings.Join(args, " "),
				"session_id":       sessionID,
				"return_sql":       showSQL,
				"include_raw_rows": showRows,
			})
			if err != nil {
				return err
			}
			return flags.call(cmd, http.MethodPost, "/v1/ask", payload)
		},
	}
	ask.Flags().StringVar(&sessionID, "session", "", "Server-side conversation id")
	ask.Flags().BoolVar(&showSQL, "sql", false, "Include the generated SQL")
	ask.Flags().BoolVar(&showRows, "rows", false, "Include the raw result rows")

	chart := &cobra.Command{
		Use:   "charts [key]",
		Short: "GET /v1/charts or /v1/charts/{key}",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/charts"
			if len(args) == 1 {
				path += "/" + url.PathEscape(args[0])
			}
			return flags.call(cmd, http.MethodGet, path, nil)
		},
	}

	cmd.AddCommand(
		get("health", "GET /v1/health", "/v1/health"),
		get("ready", "GET /v1/ready", "/v1/ready"),
		get("schema", "GET /v1/schema", "/v1/schema"),
		get("total-tickets", "GET /v1/stats/total-tickets", "/v1/stats/total-tickets"),
		chart,
		ask,
	)
	return cmd
}

func (f *remoteFlags) call(cmd *cobra.Command, method, path string, body []byte) error {
	client := f.client
	if client == nil {
		client = &http.Client{Timeout: f.timeout}
	}
	endpoint := strings.TrimRight(f.baseURL, "/") + path
	code, responseBody, err := doRequest(cmd.Context(), client, method, endpoint, f.apiKey, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}

	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
