package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var ErrBadCredentials = errors.New("invalid username or password")

type Operator struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) CreateOperator(username, password, role string) (*Operator, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password required")
	}
	if role == "" {
		role = RoleOperator
	}
	if role != RoleOperator && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	op := &Operator{Username: username, Role: role, CreatedAt: time.Now()}
	op.ID, err = db.insertID(context.Background(), db, `INSERT INTO operators (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		username, string(hash), role, formatTime(op.CreatedAt))
	if err != nil {
		return nil, err
	}
	return op, nil
}

// AuthenticateOperator checks a password and returns the operator on success.
func (db *DB) AuthenticateOperator(username, password string) (*Operator, error) {
	var op Operator
	var hash, createdAt string
	err := db.QueryRow(db.Q(`SELECT id, username, role, password_hash, created_at FROM operators WHERE username=?`), username).
		Scan(&op.ID, &op.Username, &op.Role, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	op.CreatedAt = parseTime(createdAt)
	return &op, nil
}

func (db *DB) CountOperators() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}
