package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aperture/booking/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser inserts a user unless the email is already registered.
// Returns false without error when the email exists.
func (s *Store) CreateUser(ctx context.Context, user model.User) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, photo_url, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`, user.ID, user.Email, user.Name, user.PhotoURL, string(user.Role), user.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	var role string
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, photo_url, role, created_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PhotoURL, &role, &user.CreatedAt)
	user.Role = model.ParseRole(role)
	return user, err
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, name, photo_url, role, created_at
		FROM users
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		var user model.User
		var role string
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.PhotoURL, &role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = model.ParseRole(role)
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetRoleByEmail resolves a user's role. An unknown email is not an
// error: it resolves to RoleNone.
func (s *Store) GetRoleByEmail(ctx context.Context, email string) (model.Role, error) {
	var role string
	row := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE email = $1`, email)
	if err := row.Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RoleNone, nil
		}
		return model.RoleNone, err
	}
	return model.ParseRole(role), nil
}

func (s *Store) UpdateUserRole(ctx context.Context, userID string, role model.Role) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CreateClass(ctx context.Context, class model.Class) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, name, image, instructor_name, instructor_email, available_seats, num_students, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, class.ID, class.Name, class.Image, class.InstructorName, class.InstructorEmail,
		class.AvailableSeats, class.NumStudents, class.Price, string(class.Status), class.CreatedAt)
	return err
}

// ListClassesByPopularity returns all classes ordered by descending
// enrollment count.
func (s *Store) ListClassesByPopularity(ctx context.Context) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, image, instructor_name, instructor_email, available_seats, num_students, price, status, created_at
		FROM classes
		ORDER BY num_students DESC, created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := make([]model.Class, 0)
	for rows.Next() {
		var class model.Class
		var status string
		if err := rows.Scan(&class.ID, &class.Name, &class.Image, &class.InstructorName, &class.InstructorEmail,
			&class.AvailableSeats, &class.NumStudents, &class.Price, &status, &class.CreatedAt); err != nil {
			return nil, err
		}
		class.Status = model.ClassStatus(status)
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

func (s *Store) UpdateClassStatus(ctx context.Context, classID string, status model.ClassStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE classes SET status = $1 WHERE id = $2`, string(status), classID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EnrollStudent applies the enrollment-decision update as one atomic
// statement: seats down, students up. Seats are deliberately left
// unchecked and may go negative.
func (s *Store) EnrollStudent(ctx context.Context, classID string) (model.Class, error) {
	var class model.Class
	var status string
	row := s.pool.QueryRow(ctx, `
		UPDATE classes
		SET available_seats = available_seats - 1, num_students = num_students + 1
		WHERE id = $1
		RETURNING id, name, image, instructor_name, instructor_email, available_seats, num_students, price, status, created_at
	`, classID)
	err := row.Scan(&class.ID, &class.Name, &class.Image, &class.InstructorName, &class.InstructorEmail,
		&class.AvailableSeats, &class.NumStudents, &class.Price, &status, &class.CreatedAt)
	class.Status = model.ClassStatus(status)
	return class, err
}

func (s *Store) CreateSelection(ctx context.Context, selection model.Selection) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO selections (id, email, class_id, class_name, image, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, selection.ID, selection.Email, selection.ClassID, selection.ClassName, selection.Image, selection.Price, selection.CreatedAt)
	return err
}

func (s *Store) ListSelectionsByEmail(ctx context.Context, email string) ([]model.Selection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, class_id, class_name, image, price, created_at
		FROM selections
		WHERE email = $1
		ORDER BY created_at
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	selections := make([]model.Selection, 0)
	for rows.Next() {
		var selection model.Selection
		if err := rows.Scan(&selection.ID, &selection.Email, &selection.ClassID, &selection.ClassName,
			&selection.Image, &selection.Price, &selection.CreatedAt); err != nil {
			return nil, err
		}
		selections = append(selections, selection)
	}
	return selections, rows.Err()
}

func (s *Store) DeleteSelection(ctx context.Context, selectionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM selections WHERE id = $1`, selectionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecordPayment appends a payment and deletes its source selection in
// one transaction so a failure cannot leave the pair half-applied.
// Returns whether a selection row was actually removed.
func (s *Store) RecordPayment(ctx context.Context, payment model.Payment, selectionID string) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments (id, email, transaction_id, amount, class_id, class_name, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, payment.ID, payment.Email, payment.TransactionID, payment.Amount, payment.ClassID, payment.ClassName, payment.PaidAt); err != nil {
		return false, err
	}

	deleted := false
	if selectionID != "" {
		tag, err := tx.Exec(ctx, `DELETE FROM selections WHERE id = $1`, selectionID)
		if err != nil {
			return false, err
		}
		deleted = tag.RowsAffected() > 0
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *Store) ListPaymentsByEmail(ctx context.Context, email string) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, transaction_id, amount, class_id, class_name, paid_at
		FROM payments
		WHERE email = $1
		ORDER BY paid_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]model.Payment, 0)
	for rows.Next() {
		var payment model.Payment
		if err := rows.Scan(&payment.ID, &payment.Email, &payment.TransactionID, &payment.Amount,
			&payment.ClassID, &payment.ClassName, &payment.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}
