package database

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *DB) CreateUser(email, name string) (*User, error) {
	result, err := d.Exec(
		"INSERT INTO users (email, name) VALUES (?, ?)",
		email, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return d.GetUserByID(id)
}

func (d *DB) GetUserByID(id int64) (*User, error) {
	var u User
	err := d.QueryRow(
		"SELECT id, email, name, created_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (d *DB) GetUserByEmail(email string) (*User, error) {
	var u User
	err := d.QueryRow(
		"SELECT id, email, name, created_at FROM users WHERE email = ?",
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}
