package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"
)

const stateCookieName = "oauthstate"

// SetStateCookie generates a random state value, stores it in a short-lived
// cookie and returns it for inclusion in the authorization URL.
func SetStateCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// CheckStateCookie compares the state echoed by the provider against the
// cookie set when the flow started, and clears the cookie either way.
func CheckStateCookie(w http.ResponseWriter, r *http.Request, state string) bool {
	cookie, err := r.Cookie(stateCookieName)

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if err != nil || cookie.Value == "" {
		return false
	}
	return state != "" && state == cookie.Value
}
