package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultEndpoint = "http://localhost:8645"
	tokenEnv        = "QUESTCTL_TOKEN"
)

type globalFlags struct {
	endpoint string
	token    string
	timeout  time.Duration
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "questctl",
		Short:         "Operate a questd reward ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.endpoint, "endpoint", envOr("QUESTCTL_ENDPOINT", defaultEndpoint), "questd base URL")
	root.PersistentFlags().StringVar(&flags.token, "token", os.Getenv(tokenEnv), "bearer token for write routes (default $"+tokenEnv+")")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 15*time.Second, "HTTP timeout")

	root.AddCommand(
		questCommand(flags),
		custodyCommand(flags),
		auditCommand(flags),
		tokenCommand(),
		keygenCommand(),
		endlessCommand(flags),
	)
	return root
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

func newClient(flags *globalFlags) *client {
	return &client{
		endpoint: strings.TrimRight(flags.endpoint, "/"),
		token:    strings.TrimSpace(flags.token),
		http:     &http.Client{Timeout: flags.timeout},
	}
}

// call sends body as JSON and returns the raw response. Non-2xx answers are
// returned as errors carrying the server message.
func (c *client) call(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		if raw, ok := body.(json.RawMessage); ok {
			payload = bytes.NewReader(raw)
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			payload = bytes.NewReader(encoded)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		if c.token == "" {
			return nil, fmt.Errorf("%s %s requires a token; pass --token or set %s", method, path, tokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var failure struct {
			Error string `json:"error"`
			Class string `json:"class"`
		}
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			if failure.Class != "" {
				return nil, fmt.Errorf("%s (%s, HTTP %d)", failure.Error, failure.Class, resp.StatusCode)
			}
			return nil, fmt.Errorf("%s (HTTP %d)", failure.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(out)
	return err
}
