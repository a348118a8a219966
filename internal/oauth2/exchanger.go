// Package oauth2 performs the authorization-code exchange against external
// identity providers and reduces the provider response to the subject id and
// display fields the rest of the system cares about.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrProvider covers network and protocol failures talking to the
	// provider, including reuse of a single-use authorization code.
	ErrProvider = errors.New("oauth provider error")

	// ErrConsentDenied is returned when the user declined the consent
	// screen and the provider redirected back with an error.
	ErrConsentDenied = errors.New("oauth consent denied")
)

// Profile is the provider's view of an authenticated user, reduced to what
// the identity resolver and session need.
type Profile struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
	Picture   string
}

// profileParser turns a provider userinfo response into a Profile.
type profileParser func(body []byte) (Profile, error)

// Exchanger runs the code exchange for one provider. The flow it covers:
// redirect to consent (AuthCodeURL), callback received, Exchange, after
// which the resolver takes over.
type Exchanger struct {
	provider    string
	config      *oauth2.Config
	parse       profileParser
	userInfoURL string

	// HTTPClient is used for the token and userinfo calls. Tests inject
	// one; defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds the whole exchange so a stalled provider cannot
	// hang the request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

const DefaultTimeout = 10 * time.Second

// Provider returns the provider name ("google", "github").
func (e *Exchanger) Provider() string { return e.provider }

// AuthCodeURL builds the consent-screen redirect target for the given state.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state)
}

// Exchange swaps an authorization code for the provider's user profile. The
// code is single-use; a second exchange fails with ErrProvider.
func (e *Exchanger) Exchange(ctx context.Context, code string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	// Route the token call through the injectable client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient())

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: code exchange with %s: %v", ErrProvider, e.provider, err)
	}

	body, err := e.fetchUserInfo(ctx, token)
	if err != nil {
		return Profile{}, err
	}

	profile, err := e.parse(body)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: parsing %s userinfo: %v", ErrProvider, e.provider, err)
	}
	profile.Provider = e.provider
	if profile.SubjectID == "" {
		return Profile{}, fmt.Errorf("%w: %s userinfo missing subject id", ErrProvider, e.provider)
	}
	return profile, nil
}

func (e *Exchanger) fetchUserInfo(ctx context.Context, token *oauth2.Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building userinfo request: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s userinfo: %v", ErrProvider, e.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s userinfo returned %d", ErrProvider, e.provider, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (e *Exchanger) httpClient() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

func (e *Exchanger) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

// CallbackError classifies the error query parameter of an OAuth callback.
// A nil return means the callback carries no provider error.
func CallbackError(errParam string) error {
	switch errParam {
	case "":
		return nil
	case "access_denied":
		return ErrConsentDenied
	default:
		return fmt.Errorf("%w: callback error %q", ErrProvider, errParam)
	}
}

func decodeUserInfo(body []byte) (map[string]any, error) {
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return info, nil
}

func stringField(info map[string]any, key string) string {
	v, _ := info[key].(string)
	return v
}
