package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func pgID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

func isPgUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func scanPgUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var id int64
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Age, &u.Password, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	return &u, nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id,name,email,age,password,created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	n, ok := pgID(id)
	if !ok {
		return nil, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT id,name,email,age,password,created_at FROM users WHERE id = $1`, n)
	u, err := scanPgUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,name,email,age,password,created_at FROM users WHERE email = $1`, email)
	u, err := scanPgUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(name,email,age,password) VALUES($1,$2,$3,$4) RETURNING id`,
		u.Name, u.Email, u.Age, u.Password).Scan(&id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return p.GetUser(ctx, strconv.FormatInt(id, 10))
}

func (p *PostgresStore) ReplaceUser(ctx context.Context, id, name, email string, age int) (bool, error) {
	n, ok := pgID(id)
	if !ok {
		return false, nil
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET name = $1, email = $2, age = $3 WHERE id = $4`, name, email, age, n)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (p *PostgresStore) PatchUser(ctx context.Context, id string, patch UserPatch) (bool, error) {
	n, ok := pgID(id)
	if !ok {
		return false, nil
	}
	sets, args := patchClauses(patch, "?")
	if len(sets) == 0 {
		_, err := p.GetUser(ctx, id)
		if err == ErrNotFound {
			return false, nil
		}
		return err == nil, err
	}
	// rewrite ? placeholders to $1..$n
	for i := range sets {
		sets[i] = strings.Replace(sets[i], "?", fmt.Sprintf("$%d", i+1), 1)
	}
	args = append(args, n)
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, ErrDuplicateEmail
		}
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (p *PostgresStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	n, ok := pgID(id)
	if !ok {
		return false, nil
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, n)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// lifecycle helpers
func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }
