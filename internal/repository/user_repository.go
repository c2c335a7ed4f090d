package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tolkdesk/dispatch/internal/model"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, role, email, name, mobile, city, enabled, consumer_type, customer_type,
		translator_type, translator_level, gender, suppress_notifications,
		suppress_night_notifications, no_emergency_push, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Email,
		&u.Name,
		&u.Mobile,
		&u.City,
		&u.Enabled,
		&u.ConsumerType,
		&u.CustomerType,
		&u.TranslatorType,
		&u.TranslatorLevel,
		&u.Gender,
		&u.SuppressNotifications,
		&u.SuppressNightNotifications,
		&u.NoEmergencyPush,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return u, nil
}

// GetByEmail получает пользователя по email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return u, nil
}

// Translators получает всех активных толков
func (r *UserRepository) Translators(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'translator' AND enabled ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get translators: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, nil
}

// LanguagesOf получает языки толка
func (r *UserRepository) LanguagesOf(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT language_id FROM user_languages WHERE user_id = $1 ORDER BY language_id ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get user languages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan language id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// LanguageName получает название языка из справочника
func (r *UserRepository) LanguageName(ctx context.Context, languageID int64) (string, error) {
	query := `SELECT name FROM languages WHERE id = $1`

	var name string
	err := r.pool.QueryRow(ctx, query, languageID).Scan(&name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get language name: %w", err)
	}

	return name, nil
}

// BlacklistedTranslatorIDs получает чёрный список толков заказчика
func (r *UserRepository) BlacklistedTranslatorIDs(ctx context.Context, customerID int64) ([]int64, error) {
	query := `SELECT translator_id FROM users_blacklist WHERE user_id = $1`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("get blacklist: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan translator id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
