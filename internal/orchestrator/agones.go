package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fleetmatch/backend/internal/models"
)

// Agones talks to the Agones SDK sidecar over its localhost HTTP gateway.
// The full SDK is deliberately not linked; the three lifecycle calls the
// agent needs are plain POSTs.
type Agones struct {
	baseURL string
	client  *http.Client
}

func NewAgones() *Agones {
	port := os.Getenv("AGONES_SDK_HTTP_PORT")
	if port == "" {
		port = "9358"
	}
	return &Agones{
		baseURL: "http://localhost:" + port,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (a *Agones) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agones sidecar %s returned %d", path, resp.StatusCode)
	}
	return nil
}

func (a *Agones) Ready(ctx context.Context) error    { return a.post(ctx, "/ready") }
func (a *Agones) Health(ctx context.Context) error   { return a.post(ctx, "/health") }
func (a *Agones) Shutdown(ctx context.Context) error { return a.post(ctx, "/shutdown") }
func (a *Agones) WantsIdleShutdown() bool            { return true }
func (a *Agones) Kind() models.Orchestration         { return models.OrchestrationAgones }
