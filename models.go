package main

import "time"

// User is a user record as the store returns it. The ID is assigned by the
// store and treated as an opaque string (ObjectID hex for mongo, a numeric
// string for the SQL adapters, a UUID for the memory adapter).
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPatch carries a merge-patch: only non-nil fields are applied.
type UserPatch struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Age      *int    `json:"age"`
	Password *string `json:"password"`
}
