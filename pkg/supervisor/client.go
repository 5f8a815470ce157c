package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/restwell/sleepagent/pkg/logger"
)

// Client talks to the supervisor agent that fronts this worker.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// VerifyUser asks the supervisor whether a user id is known. Transport
// failures are treated as not-verified so the caller can degrade instead of
// blocking on the supervisor.
func (c *Client) VerifyUser(ctx context.Context, userID string) bool {
	url := fmt.Sprintf("%s/internal/api/verify_user/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.ErrorCF("supervisor", "User verification failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.ErrorCF("supervisor", "User verification response malformed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return false
	}
	return body.Valid
}

// Announce notifies the supervisor that this agent is up and where to reach
// it. A failure is logged and ignored; the agent serves regardless.
func (c *Client) Announce(ctx context.Context, agentID, name, version string, port int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"agent_id": agentID,
		"name":     name,
		"version":  version,
		"port":     port,
	})

	url := c.baseURL + "/internal/api/agents/announce"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WarnCF("supervisor", "Announce failed", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	logger.InfoCF("supervisor", "Announced to supervisor", map[string]interface{}{
		"agent_id": agentID,
		"status":   resp.StatusCode,
	})
}
