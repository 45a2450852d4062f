package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the matcher HTTP API on behalf of simulated users.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Result is one completed API call.
type Result struct {
	Status   int
	Latency  time.Duration
	MatchIDs []string // for GetMatches with status 200
}

// GetMatches calls GET /v1/matches as userID.
func (c *Client) GetMatches(ctx context.Context, userID string, refresh bool) (Result, error) {
	target := c.baseURL + "/v1/matches"
	if refresh {
		target += "?refresh=true"
	}
	res, body, err := c.do(ctx, http.MethodGet, target, userID)
	if err != nil || res.Status != http.StatusOK {
		return res, err
	}

	var reply struct {
		MatchSet struct {
			Matches []struct {
				ID string `json:"id"`
			} `json:"matches"`
		} `json:"match_set"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return res, fmt.Errorf("decode matches: %w", err)
	}
	for _, m := range reply.MatchSet.Matches {
		res.MatchIDs = append(res.MatchIDs, m.ID)
	}
	return res, nil
}

// PassMatch calls POST /v1/matches/{id}/pass as userID.
func (c *Client) PassMatch(ctx context.Context, userID, matchID string) (Result, error) {
	res, _, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/matches/"+url.PathEscape(matchID)+"/pass", userID)
	return res, err
}

func (c *Client) do(ctx context.Context, method, target, userID string) (Result, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Result{}, nil, err
	}
	req.Header.Set("X-User-ID", userID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res := Result{Status: resp.StatusCode, Latency: time.Since(start)}
	if err != nil {
		return res, nil, fmt.Errorf("read body: %w", err)
	}
	return res, body, nil
}
