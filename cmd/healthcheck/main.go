// Container healthcheck probe: exits 0 when the target reports healthy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/o3willard-AI/agentpki/internal/api"
)

func main() {
	url := flag.String("url", "http://127.0.0.1:8000/health", "health endpoint to probe")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %s\n", resp.Status)
		os.Exit(1)
	}

	var health api.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "OK" {
		fmt.Fprintf(os.Stderr, "healthcheck failed: unexpected body\n")
		os.Exit(1)
	}
}
