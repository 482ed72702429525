package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
)

// Client fetches credentials from a remote token endpoint
// (GET /token?room=...&identity=...).
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, http: http.DefaultClient}
}

type tokenResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

func (c *Client) Fetch(ctx context.Context, room domain.RoomName, identity domain.Identity) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: bad token endpoint: %w", core.ErrConnectionFailed, err)
	}
	q := u.Query()
	q.Set("room", string(room))
	q.Set("identity", string(identity))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrConnectionFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %w", core.ErrConnectionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token server returned %d: %s", core.ErrConnectionFailed, resp.StatusCode, body.Error)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", core.ErrConnectionFailed)
	}
	return body.Token, nil
}
