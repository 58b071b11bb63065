package handlers

import (
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"makecoffee/internal/access"
	"makecoffee/internal/accounts"
	"makecoffee/internal/apperr"
	"makecoffee/internal/catalog"
	applog "makecoffee/internal/log"
	"makecoffee/internal/recipes"
	"makecoffee/models"
)

const (
	sessionAuthenticatedKey = "auth:authenticated"
	sessionUserIDKey        = "auth:user:id"
	sessionUsernameKey      = "auth:user:name"
)

var (
	sessionManager    *scs.SessionManager
	catalogService    *catalog.Service
	recipeService     *recipes.Service
	accountService    *accounts.Service
	loginLimiter      *ipLimiter
	trustProxyHeaders bool
)

// Dependencies are the collaborators shared by every handler.
type Dependencies struct {
	Sessions *scs.SessionManager
	Catalog  *catalog.Service
	Recipes  *recipes.Service
	Accounts *accounts.Service
	// LoginPerMinute and LoginBurst throttle login attempts per client
	// address. Zero disables throttling.
	LoginPerMinute int
	LoginBurst     int
	// TrustProxyHeaders keys login throttling on X-Forwarded-For and
	// X-Real-IP instead of the connection's remote address.
	TrustProxyHeaders bool
}

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(deps Dependencies) {
	sessionManager = deps.Sessions
	catalogService = deps.Catalog
	recipeService = deps.Recipes
	accountService = deps.Accounts
	loginLimiter = newIPLimiter(deps.LoginPerMinute, deps.LoginBurst)
	trustProxyHeaders = deps.TrustProxyHeaders
}

func establishSession(r *http.Request, user *models.User) error {
	if sessionManager == nil {
		return errors.New("session manager not configured")
	}
	if err := sessionManager.RenewToken(r.Context()); err != nil {
		return err
	}
	sessionManager.Put(r.Context(), sessionAuthenticatedKey, true)
	sessionManager.Put(r.Context(), sessionUserIDKey, int(user.ID))
	sessionManager.Put(r.Context(), sessionUsernameKey, user.Username)
	return nil
}

// ActiveSession returns true when the current request has an authenticated session.
func ActiveSession(r *http.Request) bool {
	if sessionManager == nil {
		return false
	}
	return sessionManager.GetBool(r.Context(), sessionAuthenticatedKey) && sessionManager.GetInt(r.Context(), sessionUserIDKey) > 0
}

func currentUserID(r *http.Request) (uint, bool) {
	if !ActiveSession(r) {
		return 0, false
	}
	return uint(sessionManager.GetInt(r.Context(), sessionUserIDKey)), true
}

// Identify attaches the caller identity to the request context. A session
// wins over basic credentials; requests carrying neither are guests. Wrong
// basic credentials are refused outright.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := resolveIdentity(r)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Basic realm="makecoffee"`)
			}
			writeError(w, r, err)
			return
		}

		ctx := access.WithIdentity(r.Context(), identity)
		if identity.Authenticated() {
			ctx = applog.WithAttrs(ctx, "user_id", identity.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func resolveIdentity(r *http.Request) (access.Identity, error) {
	if accountService == nil {
		return access.Identity{}, nil
	}

	if userID, ok := currentUserID(r); ok {
		user, err := accountService.Get(r.Context(), userID)
		switch {
		case err == nil:
			return access.FromUser(user), nil
		case apperr.Is(err, apperr.KindNotFound):
			applog.Debug(r.Context(), "session references missing user, treating as guest", "user_id", userID)
			sessionManager.Remove(r.Context(), sessionAuthenticatedKey)
			sessionManager.Remove(r.Context(), sessionUserIDKey)
		default:
			return access.Identity{}, err
		}
	}

	if username, password, ok := r.BasicAuth(); ok {
		user, err := accountService.Authenticate(r.Context(), username, password)
		if err != nil {
			return access.Identity{}, err
		}
		return access.FromUser(user), nil
	}

	return access.Identity{}, nil
}

// authorize checks the caller against endpoint and writes the refusal.
func authorize(w http.ResponseWriter, r *http.Request, endpoint access.Endpoint) (access.Identity, bool) {
	identity := access.FromContext(r.Context())
	if err := access.Check(identity, endpoint); err != nil {
		applog.Debug(r.Context(), "access denied", "endpoint", string(endpoint), "user_id", identity.UserID)
		writeError(w, r, err)
		return identity, false
	}
	return identity, true
}

func servicesReady(w http.ResponseWriter) bool {
	if catalogService == nil || recipeService == nil || accountService == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
		return false
	}
	return true
}
