package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://codeforces.com/api"

// Submission is one entry of the Codeforces user.status response, trimmed to
// the fields the engine filters on.
type Submission struct {
	Problem struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
	} `json:"problem"`
	Verdict string `json:"verdict"`
}

type userStatusResponse struct {
	Status  string       `json:"status"`
	Comment string       `json:"comment"`
	Result  []Submission `json:"result"`
}

// Client wraps the Codeforces API for submission verification. The call is a
// blocking external request, so every method takes a context and the HTTP
// client carries a hard timeout.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UserStatus fetches the submission history of a handle
func (c *Client) UserStatus(ctx context.Context, handle string) ([]Submission, error) {
	endpoint := fmt.Sprintf("%s/user.status?handle=%s", c.BaseURL, url.QueryEscape(handle))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user.status for %s: %w", handle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user.status for %s: unexpected status %d", handle, resp.StatusCode)
	}

	var body userStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("user.status for %s: decode: %w", handle, err)
	}
	if body.Status != "OK" {
		return nil, fmt.Errorf("user.status for %s: api status %q: %s", handle, body.Status, body.Comment)
	}
	return body.Result, nil
}

// HasSolved reports whether the handle has an accepted submission for the
// problem. questionID is the external reference, contest id immediately
// followed by the index letter (e.g. "1800A").
func (c *Client) HasSolved(ctx context.Context, handle, questionID string) (bool, error) {
	submissions, err := c.UserStatus(ctx, handle)
	if err != nil {
		return false, err
	}

	for _, sub := range submissions {
		ref := strconv.Itoa(sub.Problem.ContestID) + sub.Problem.Index
		if ref == questionID && sub.Verdict == "OK" {
			return true, nil
		}
	}
	return false, nil
}
