package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

// IdentityHTTPClient implements service.IdentityClientInterface against the
// platform identity service's HTTP API.
type IdentityHTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewIdentityHTTPClient creates a client for the identity service at baseURL.
func NewIdentityHTTPClient(baseURL string, timeout time.Duration) *IdentityHTTPClient {
	return &IdentityHTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID       string   `json:"id"`
	IsActive bool     `json:"is_active"`
	Roles    []string `json:"roles"`
}

// GetUserRoles returns the role names a user holds.
func (c *IdentityHTTPClient) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	user, err := c.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}

// IsActive reports whether the user account is live. Unknown users are not
// active.
func (c *IdentityHTTPClient) IsActive(ctx context.Context, userID string) (bool, error) {
	user, err := c.getUser(ctx, userID)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return false, nil
		}
		return false, err
	}
	return user.IsActive, nil
}

func (c *IdentityHTTPClient) getUser(ctx context.Context, userID string) (*userResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build identity request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "identity service unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.NotFound("user", userID)
	default:
		return nil, errors.Newf(errors.ErrCodeUnavailable,
			"identity service returned status %d", resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to decode identity response")
	}
	return &user, nil
}
