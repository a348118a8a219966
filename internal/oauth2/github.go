package oauth2

import (
	"encoding/json"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserInfoURL = "https://api.github.com/user"

// NewGithub builds the exchanger for GitHub sign-in.
func NewGithub(clientID, clientSecret, callbackURL string) *Exchanger {
	return &Exchanger{
		provider: "github",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		userInfoURL: githubUserInfoURL,
		parse:       parseGithubProfile,
	}
}

func parseGithubProfile(body []byte) (Profile, error) {
	// GitHub's id is numeric; everything else we use is a plain string.
	var info struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, err
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}
	return Profile{
		SubjectID: info.ID.String(),
		Email:     info.Email,
		Name:      name,
		Picture:   info.AvatarURL,
	}, nil
}
