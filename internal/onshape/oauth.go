package onshape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// OAuthClient exchanges authorization codes and refresh tokens against the
// Onshape OAuth server.
type OAuthClient struct {
	oauthURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewOAuthClient(oauthURL, clientID, clientSecret string) *OAuthClient {
	return &OAuthClient{
		oauthURL:     oauthURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthorizeURL is the URL users are redirected to when the extension is
// first opened without a stored credential.
func (c *OAuthClient) AuthorizeURL() string {
	return c.oauthURL + "/oauth/authorize?response_type=code&client_id=" + url.QueryEscape(c.clientID)
}

// ExchangeCode trades an authorization code for a token pair.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})
}

// RefreshToken trades a refresh token for a fresh token pair. Callers must
// persist both returned tokens since the old refresh token is invalidated.
func (c *OAuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (c *OAuthClient) tokenRequest(ctx context.Context, params url.Values) (*Token, error) {
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)

	u := c.oauthURL + "/oauth/token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("onshape: token request returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return &Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
