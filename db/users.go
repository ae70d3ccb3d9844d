package db

import (
	"context"
	"fmt"

	"exam-portal/models"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureRoles inserts the given role names, keeping existing ones.
func (s *Store) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := s.q(ctx).Exec(ctx, `INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("failed to insert role %s: %w", name, err)
		}
	}
	return nil
}

// ListRoles returns the provisioned role names.
func (s *Store) ListRoles(ctx context.Context) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT name FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// CreateUser inserts u and sets its ID. Duplicate usernames or emails are conflicts.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role).Scan(&u.ID, &u.CreatedAt)
	return mapError(err, "user")
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "user")
	}
	return u, nil
}

// GetUserByUsername fetches a user for login.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, mapError(err, "user")
	}
	return u, nil
}

// SearchStudents finds students whose username contains query and who have a result in one
// of the teacher's courses.
func (s *Store) SearchStudents(ctx context.Context, teacherID int64, query string) ([]models.User, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT DISTINCT u.id, u.username, u.email, u.first_name, u.last_name, u.password_hash, u.role, u.created_at
		FROM users u
		JOIN exam_results r ON r.user_id = u.id
		JOIN exams e ON e.id = r.exam_id
		JOIN courses c ON c.id = e.course_id
		WHERE u.role = $1 AND c.teacher_id = $2 AND u.username ILIKE $3
		ORDER BY u.username
	`, models.RoleStudent, teacherID, like(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
