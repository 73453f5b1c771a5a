package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// Age is a pointer so that a zero age is distinguishable from an absent
// field; "required" on a plain int would reject 0.
type createUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Age      *int   `json:"age" validate:"required,gte=0"`
	Password string `json:"password"`
}

type replaceUserRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Age   *int   `json:"age" validate:"required,gte=0"`
}

func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storeCtx(r)
	defer cancel()

	users, err := a.Store.ListUsers(ctx)
	if err != nil {
		a.Log.WithError(err).Error("list users failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if users == nil {
		users = []*User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *App) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Name, email and age are required")
		return
	}

	u := &User{Name: req.Name, Email: req.Email, Age: *req.Age}
	if req.Password != "" {
		hashed, err := hashPassword(req.Password)
		if err != nil {
			a.Log.WithError(err).Error("create user: password hashing failed")
			writeError(w, http.StatusServiceUnavailable, "Service unavailable")
			return
		}
		u.Password = hashed
	}

	ctx, cancel := storeCtx(r)
	defer cancel()

	created, err := a.Store.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "A user with this email already exists")
			return
		}
		a.Log.WithError(err).Error("create user failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *App) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := storeCtx(r)
	defer cancel()

	user, err := a.Store.GetUser(ctx, id)
	if err != nil {
		// malformed ids are normalized to not-found by the adapters
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		a.Log.WithError(err).WithField("id", id).Error("get user failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *App) HandleReplaceUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req replaceUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// A full replace requires all three fields; a missing field is an error,
	// not an overwrite with a zero value.
	if err := a.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Name, email and age are required")
		return
	}

	ctx, cancel := storeCtx(r)
	defer cancel()

	matched, err := a.Store.ReplaceUser(ctx, id, req.Name, req.Email, *req.Age)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "A user with this email already exists")
			return
		}
		a.Log.WithError(err).WithField("id", id).Error("replace user failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if !matched {
		a.Log.WithField("id", id).Info("replace matched no record")
	}
	writeMessage(w, http.StatusOK, "User has been updated")
}

func (a *App) HandlePatchUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Password != nil {
		hashed, err := hashPassword(*patch.Password)
		if err != nil {
			a.Log.WithError(err).Error("patch user: password hashing failed")
			writeError(w, http.StatusServiceUnavailable, "Service unavailable")
			return
		}
		patch.Password = &hashed
	}

	ctx, cancel := storeCtx(r)
	defer cancel()

	matched, err := a.Store.PatchUser(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "A user with this email already exists")
			return
		}
		a.Log.WithError(err).WithField("id", id).Error("patch user failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if !matched {
		a.Log.WithField("id", id).Info("patch matched no record")
	}
	writeMessage(w, http.StatusOK, "User has been updated")
}

func (a *App) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := storeCtx(r)
	defer cancel()

	matched, err := a.Store.DeleteUser(ctx, id)
	if err != nil {
		a.Log.WithError(err).WithField("id", id).Error("delete user failed")
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	// The response does not distinguish a delete from a no-op; the log does.
	if !matched {
		a.Log.WithField("id", id).Info("delete matched no record")
	}
	writeMessage(w, http.StatusOK, "User has been deleted.")
}
