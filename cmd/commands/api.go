package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultServerURL = "http://127.0.0.1:18430"

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "server",
		Usage: "Base URL of a running coordinator",
		Value: defaultServerURL,
	}
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

// apiGet fetches a JSON endpoint from the running coordinator.
func apiGet(base, path string, out any) error {
	resp, err := apiClient.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the coordinator running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiPost posts to an endpoint and decodes the JSON response into out (nil to
// discard it).
func apiPost(base, path string, out any) error {
	resp, err := apiClient.Post(base+path, "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("is the coordinator running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
