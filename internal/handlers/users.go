package handlers

import (
	"net/http"

	"makecoffee/internal/access"
	"makecoffee/internal/accounts"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

type userResponse struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Password  string `json:"password" validate:"required,min=6"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userUpdateRequest struct {
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Password  *string `json:"password" validate:"omitempty,min=6"`
}

// Users serves account endpoints under /users/.
func Users(w http.ResponseWriter, r *http.Request) {
	if !servicesReady(w) {
		return
	}

	segments := pathSegments(r.URL.Path, "/users")
	if len(segments) != 1 {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch segments[0] {
	case "register":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		registerUser(w, r)
	case "login":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		loginUser(w, r)
	case "logout":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		logoutUser(w, r)
	case "update":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		updateUser(w, r)
	case "me":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		showCurrentUser(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func registerUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, access.UserRegister); !ok {
		return
	}

	var payload registerRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := accountService.Register(r.Context(), accounts.RegisterInput{
		Username:  payload.Username,
		Password:  payload.Password,
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectUser(user))
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, access.UserLogin); !ok {
		return
	}
	if remote := clientIP(r, trustProxyHeaders); !loginLimiter.Allow(remote) {
		applog.Warn(r.Context(), "login rate limit exceeded", "remote", remote)
		writeJSONError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var payload loginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := accountService.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := establishSession(r, user); err != nil {
		writeError(w, r, err)
		return
	}

	applog.Info(r.Context(), "user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, projectUser(user))
}

func logoutUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, access.UserLogout); !ok {
		return
	}
	if sessionManager != nil {
		if err := sessionManager.Destroy(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func updateUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := authorize(w, r, access.UserUpdate)
	if !ok {
		return
	}

	var payload userUpdateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := accountService.Update(r.Context(), identity.UserID, accounts.UpdateInput{
		Email:     payload.Email,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Password:  payload.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectUser(user))
}

func showCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := authorize(w, r, access.UserShow)
	if !ok {
		return
	}
	user, err := accountService.Get(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectUser(user))
}

func projectUser(user *models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
	}
}
