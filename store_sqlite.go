package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		age INTEGER NOT NULL,
		password TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);`)
	return err
}

// sqliteID parses the opaque id the API hands around. SQLite assigns integer
// keys, so anything non-numeric cannot match a record.
func sqliteID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanSQLiteUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var id int64
	var created string
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Age, &u.Password, &created); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
		u.CreatedAt = t
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,email,age,password,created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	n, ok := sqliteID(id)
	if !ok {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT id,name,email,age,password,created_at FROM users WHERE id = ?`, n)
	u, err := scanSQLiteUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,email,age,password,created_at FROM users WHERE email = ?`, email)
	u, err := scanSQLiteUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(name,email,age,password) VALUES(?,?,?,?)`,
		u.Name, u.Email, u.Age, u.Password)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, strconv.FormatInt(id, 10))
}

func (s *SQLiteStore) ReplaceUser(ctx context.Context, id, name, email string, age int) (bool, error) {
	n, ok := sqliteID(id)
	if !ok {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, age = ? WHERE id = ?`, name, email, age, n)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *SQLiteStore) PatchUser(ctx context.Context, id string, p UserPatch) (bool, error) {
	n, ok := sqliteID(id)
	if !ok {
		return false, nil
	}
	sets, args := patchClauses(p, "?")
	if len(sets) == 0 {
		// nothing to change; report whether the record exists
		_, err := s.GetUser(ctx, id)
		if err == ErrNotFound {
			return false, nil
		}
		return err == nil, err
	}
	args = append(args, n)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	n, ok := sqliteID(id)
	if !ok {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, n)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// patchClauses renders the set fields of a merge-patch as SQL assignments.
// placeholder is "?" for sqlite; postgres positions are rewritten afterwards.
func patchClauses(p UserPatch, placeholder string) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	if p.Name != nil {
		sets = append(sets, "name = "+placeholder)
		args = append(args, *p.Name)
	}
	if p.Email != nil {
		sets = append(sets, "email = "+placeholder)
		args = append(args, *p.Email)
	}
	if p.Age != nil {
		sets = append(sets, "age = "+placeholder)
		args = append(args, *p.Age)
	}
	if p.Password != nil {
		sets = append(sets, "password = "+placeholder)
		args = append(args, *p.Password)
	}
	return sets, args
}

// lifecycle helpers
func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }
