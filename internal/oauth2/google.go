package oauth2

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// NewGoogle builds the exchanger for Google sign-in, requesting the profile
// and email scopes.
func NewGoogle(clientID, clientSecret, callbackURL string) *Exchanger {
	return &Exchanger{
		provider: "google",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		userInfoURL: googleUserInfoURL,
		parse:       parseGoogleProfile,
	}
}

func parseGoogleProfile(body []byte) (Profile, error) {
	info, err := decodeUserInfo(body)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		SubjectID: stringField(info, "id"),
		Email:     stringField(info, "email"),
		Name:      stringField(info, "name"),
		Picture:   stringField(info, "picture"),
	}, nil
}

// WithEndpoints overrides the provider endpoints and userinfo URL. Tests use
// this to point the exchanger at a fake provider.
func (e *Exchanger) WithEndpoints(authURL, tokenURL, userInfoURL string) *Exchanger {
	e.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	e.userInfoURL = userInfoURL
	return e
}
