// Package web is the HTTP-facing layer: it maps routes onto the auth
// strategies, the resolver and the session manager, and decides redirects.
// It is the only layer that translates error kinds into user-visible
// responses.
package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/authsite/authsite/internal/auth"
	"github.com/authsite/authsite/internal/oauth2"
	"github.com/authsite/authsite/internal/session"
	"github.com/authsite/authsite/internal/store"
)

// Handler holds the dependencies for all web handlers.
type Handler struct {
	log        *slog.Logger
	sessions   *session.Manager
	resolver   *auth.Resolver
	strategies map[string]auth.Strategy
	exchangers map[string]*oauth2.Exchanger
	templates  *TemplateSet
}

// New wires the handler. Exchangers may be nil for providers that are not
// configured; their routes then answer 404.
func New(log *slog.Logger, sessions *session.Manager, resolver *auth.Resolver, exchangers ...*oauth2.Exchanger) (*Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:        log.With(slog.String("component", "web")),
		sessions:   sessions,
		resolver:   resolver,
		strategies: make(map[string]auth.Strategy),
		exchangers: make(map[string]*oauth2.Exchanger),
		templates:  templates,
	}
	for _, ex := range exchangers {
		if ex == nil {
			continue
		}
		h.exchangers[ex.Provider()] = ex
		h.strategies[ex.Provider()] = &auth.OAuthStrategy{Resolver: resolver, Exchanger: ex}
	}
	h.strategies["local"] = &auth.LocalStrategy{Resolver: resolver}
	return h, nil
}

// Router builds the route table, wrapped in session loading and request
// logging.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/signUp", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodGet)

	r.HandleFunc("/auth/{provider}", h.OAuthStart).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/profile", h.OAuthCallback).Methods(http.MethodGet)

	r.PathPrefix("/static/").Handler(http.FileServerFS(staticFS))

	return logRequests(h.log, h.sessions.Sessions.LoadAndSave(r))
}

// Index renders the registration page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html", map[string]any{
		"Failed": r.URL.Query().Get("failed") != "",
	})
}

// LoginPage renders the login form without an error message.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", loginView{})
}

type loginView struct {
	HasError bool
	ErrorMsg string
}

// Register creates a local identity and logs it in. A duplicate email
// redirects home with only an error flag; no partial input survives.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	email, password, ok := parseCredentials(r)
	if !ok {
		http.Redirect(w, r, "/?failed=1", http.StatusSeeOther)
		return
	}

	identity, err := h.resolver.Register(r.Context(), email, password)
	if errors.Is(err, store.ErrDuplicate) {
		h.log.Info("registration rejected", slog.String("reason", "duplicate email"))
		http.Redirect(w, r, "/?failed=1", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.log.Error("registration failed", slog.String("error", err.Error()))
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.Issue(r.Context(), identity, "", ""); err != nil {
		h.log.Error("issuing session failed", slog.String("error", err.Error()))
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// Login verifies credentials first and only then issues a session. Unknown
// email and wrong password produce the same message so the response never
// reveals which part was wrong.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email, password, ok := parseCredentials(r)
	if !ok {
		h.renderLoginError(w)
		return
	}

	resolved, err := h.strategies["local"].Resolve(r.Context(), auth.Input{Email: email, Password: password})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
		h.renderLoginError(w)
		return
	}
	if err != nil {
		h.log.Error("login failed", slog.String("error", err.Error()))
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.Issue(r.Context(), resolved.Identity, resolved.Name, resolved.Picture); err != nil {
		h.log.Error("issuing session failed", slog.String("error", err.Error()))
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
	h.render(w, "login.html", loginView{
		HasError: true,
		ErrorMsg: "Invalid email or password",
	})
}

// Profile renders the authenticated profile page, or redirects anonymous
// visitors home.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.sessions.Current(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, "profile.html", map[string]any{"User": user})
}

// Logout revokes the session. Revoking an anonymous session is a no-op.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Revoke(r.Context()); err != nil {
		h.log.Error("revoking session failed", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// OAuthStart redirects to the provider's consent screen with a fresh state
// value.
func (h *Handler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchangers[mux.Vars(r)["provider"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	state := oauth2.SetStateCookie(w)
	http.Redirect(w, r, ex.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback finishes the flow: classify a provider error, check state,
// exchange the code, resolve the identity and issue a session. Every
// failure path lands back on the index page.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	strategy, ok := h.strategies[provider]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := oauth2.CallbackError(r.URL.Query().Get("error")); err != nil {
		if errors.Is(err, oauth2.ErrConsentDenied) {
			h.log.Info("oauth consent denied", slog.String("provider", provider))
		} else {
			h.log.Error("oauth callback error", slog.String("provider", provider), slog.String("error", err.Error()))
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if !oauth2.CheckStateCookie(w, r, r.URL.Query().Get("state")) {
		h.log.Warn("oauth state mismatch", slog.String("provider", provider))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	resolved, err := strategy.Resolve(r.Context(), auth.Input{Code: code})
	if err != nil {
		h.log.Error("oauth login failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := h.sessions.Issue(r.Context(), resolved.Identity, resolved.Name, resolved.Picture); err != nil {
		h.log.Error("issuing session failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}

func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	if err := h.templates.Execute(w, page, data); err != nil {
		h.log.Error("rendering failed", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// parseCredentials reads email and password from a form post.
func parseCredentials(r *http.Request) (email, password string, ok bool) {
	if err := r.ParseForm(); err != nil {
		return "", "", false
	}
	email = r.FormValue("email")
	password = r.FormValue("password")
	return email, password, email != "" && password != ""
}
