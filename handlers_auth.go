package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// storeTimeout bounds every store call so a hung store cannot hang the
// request indefinitely.
const storeTimeout = 5 * time.Second

// refreshCookieName matches what clients already hold.
const refreshCookieName = "jwt"

var errPasswordMismatch = errors.New("password mismatch")

func storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}

func setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
	})
}

type creds struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Age is a pointer so that a zero age is distinguishable from an absent
// field; "required" on a plain int would reject 0.
type signupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Age      *int   `json:"age" validate:"required,gte=0"`
}

// verifyCredentials looks up the user by email and compares the password.
// Returns ErrNotFound, errPasswordMismatch, or the store's own error.
func (a *App) verifyCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := a.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !comparePassword(user.Password, password) {
		return nil, errPasswordMismatch
	}
	return user, nil
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := storeCtx(r)
	defer cancel()

	user, err := a.verifyCredentials(ctx, c.Email, c.Password)
	if err != nil {
		// Unknown email and wrong password answer identically.
		if errors.Is(err, ErrNotFound) || errors.Is(err, errPasswordMismatch) {
			writeError(w, http.StatusUnauthorized, "Please check your credentials.")
			return
		}
		a.Log.WithError(err).Error("login: store lookup failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	access, err := a.Tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		a.Log.WithError(err).Error("login: access token issuance failed")
		writeError(w, http.StatusServiceUnavailable, "Cannot initialize token")
		return
	}
	refresh, err := a.Tokens.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		a.Log.WithError(err).Error("login: refresh token issuance failed")
		writeError(w, http.StatusServiceUnavailable, "Cannot initialize token")
		return
	}

	setRefreshCookie(w, refresh, a.Tokens.RefreshTTL())
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
		"token":  access,
	})
}

func (a *App) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Name, email, password and age are required")
		return
	}

	ctx, cancel := storeCtx(r)
	defer cancel()

	_, err := a.Store.GetUserByEmail(ctx, req.Email)
	if err == nil {
		writeError(w, http.StatusConflict, "Error! The user already exists")
		return
	}
	if !errors.Is(err, ErrNotFound) {
		a.Log.WithError(err).Error("signup: store lookup failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		a.Log.WithError(err).Error("signup: password hashing failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	user, err := a.Store.CreateUser(ctx, &User{
		Name:     req.Name,
		Email:    req.Email,
		Age:      *req.Age,
		Password: hashed,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// lost the race against a concurrent signup with the same email
			writeError(w, http.StatusConflict, "Error! The user already exists")
			return
		}
		a.Log.WithError(err).Error("signup: insert failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	// From here the user record is persisted. A token failure leaves the
	// account in place without a usable session; the client can log in.
	access, err := a.Tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		a.Log.WithError(err).WithField("userId", user.ID).Error("signup: token issuance failed after insert")
		writeError(w, http.StatusServiceUnavailable, "Cannot initialize token")
		return
	}

	// Signup hands out only an access token; the refresh cookie is set on
	// login.
	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
		"token":  access,
	})
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusNotAcceptable, "Unauthorized")
		return
	}

	claims, err := a.Tokens.VerifyRefreshToken(cookie.Value)
	if err != nil {
		// expired and tampered tokens are indistinguishable to the client
		writeError(w, http.StatusNotAcceptable, "Unauthorized")
		return
	}

	// The new access token is minted from the refresh token's own claims;
	// the user record is not re-fetched, so claims can be stale if the
	// account changed since login.
	access, err := a.Tokens.IssueAccessToken(claims.UserID, claims.Email)
	if err != nil {
		a.Log.WithError(err).Error("refresh: access token issuance failed")
		writeError(w, http.StatusServiceUnavailable, "Cannot initialize token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}
