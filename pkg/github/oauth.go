package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
)

// DefaultOAuthBase hosts the device-code and token-exchange endpoints.
const DefaultOAuthBase = "https://github.com"

// OAuth drives the two supported authorization flows: device flow for
// browserless setup and the classic authorization-code exchange.
type OAuth struct {
	baseURL      string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
}

// NewOAuth creates an OAuth helper. baseURL "" means DefaultOAuthBase.
func NewOAuth(baseURL, clientID, clientSecret, scope string, httpClient *http.Client) *OAuth {
	if baseURL == "" {
		baseURL = DefaultOAuthBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &OAuth{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   httpClient,
	}
}

// DeviceAuth is the state handed to the user during device flow.
type DeviceAuth struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// StartDeviceFlow requests a device code the user confirms on the provider's
// verification page.
func (o *OAuth) StartDeviceFlow(ctx context.Context) (*DeviceAuth, error) {
	form := url.Values{
		"client_id": {o.clientID},
		"scope":     {o.scope},
	}
	var auth DeviceAuth
	if err := o.postForm(ctx, "/login/device/code", form, &auth); err != nil {
		return nil, err
	}
	if auth.Interval <= 0 {
		auth.Interval = 5
	}
	return &auth, nil
}

// PollDeviceToken performs one poll of the token endpoint. While the user has
// not confirmed yet it returns an AUTH_PENDING error; "slow_down" responses
// are AUTH_PENDING with a larger suggested interval in the error context.
func (o *OAuth) PollDeviceToken(ctx context.Context, deviceCode string) (string, error) {
	form := url.Values{
		"client_id":   {o.clientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	var body tokenResponse
	if err := o.postForm(ctx, "/login/oauth/access_token", form, &body); err != nil {
		return "", err
	}
	return body.token()
}

// WaitForDeviceToken polls until the user confirms, the code expires, or the
// context is cancelled. The fixed interval comes from the device auth
// response; "slow_down" stretches it.
func (o *OAuth) WaitForDeviceToken(ctx context.Context, auth *DeviceAuth) (string, error) {
	interval := time.Duration(auth.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return "", gerrors.Wrap(ctx.Err(), gerrors.ErrCodeAuthExpired, "device flow cancelled")
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return "", gerrors.New(gerrors.ErrCodeAuthExpired, "device code expired")
		}

		token, err := o.PollDeviceToken(ctx, auth.DeviceCode)
		if err == nil {
			return token, nil
		}
		ge, ok := err.(*gerrors.Error)
		if !ok || ge.Code != gerrors.ErrCodeAuthPending {
			return "", err
		}
		if slow, ok := ge.Context["interval"].(int); ok && slow > 0 {
			interval = time.Duration(slow) * time.Second
		}
	}
}

// ExchangeCode trades an authorization code for an access token.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"client_id":     {o.clientID},
		"client_secret": {o.clientSecret},
		"code":          {code},
	}
	var body tokenResponse
	if err := o.postForm(ctx, "/login/oauth/access_token", form, &body); err != nil {
		return "", err
	}
	return body.token()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	Interval    int    `json:"interval"`
}

func (t *tokenResponse) token() (string, error) {
	switch t.Error {
	case "":
	case "authorization_pending":
		return "", gerrors.New(gerrors.ErrCodeAuthPending, "authorization pending")
	case "slow_down":
		return "", gerrors.New(gerrors.ErrCodeAuthPending, "slow down").
			WithContext("interval", t.Interval)
	case "expired_token":
		return "", gerrors.New(gerrors.ErrCodeAuthExpired, "device code expired")
	default:
		return "", gerrors.New(gerrors.ErrCodeRemoteAPI, "token exchange failed: "+t.Error)
	}
	if strings.TrimSpace(t.AccessToken) == "" {
		return "", gerrors.New(gerrors.ErrCodeRemoteAPI, "token exchange returned no token")
	}
	return t.AccessToken, nil
}

func (o *OAuth) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeRemoteAPI, "token endpoint unreachable").
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gerrors.New(gerrors.ErrCodeRemoteAPI,
			fmt.Sprintf("POST %s: status %d", path, resp.StatusCode)).
			WithContext("status", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeRemoteAPI, "decoding token response")
	}
	return nil
}
