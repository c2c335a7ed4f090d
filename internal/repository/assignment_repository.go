package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tolkdesk/dispatch/internal/errs"
	"github.com/tolkdesk/dispatch/internal/model"
)

type AssignmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

const assignmentColumns = `id, job_id, translator_id, cancel_at, completed_at, completed_by, created_at`

func scanAssignment(row pgx.Row) (*model.Assignment, error) {
	var a model.Assignment
	err := row.Scan(
		&a.ID,
		&a.JobID,
		&a.TranslatorID,
		&a.CancelAt,
		&a.CompletedAt,
		&a.CompletedBy,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Accept атомарно переводит pending заказ в assigned и создаёт назначение.
// Проигравший из двух конкурентных вызовов получает ErrAlreadyAssigned:
// compare-and-set по статусу выполняется в одной транзакции со вставкой,
// а частичный уникальный индекс по активным назначениям страхует на уровне БД.
func (r *AssignmentRepository) Accept(ctx context.Context, jobID, translatorID int64) (*model.Assignment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE jobs SET status = 'assigned', updated_at = now() WHERE id = $1 AND status = 'pending'`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("assign job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, errs.ErrAlreadyAssigned
	}

	a := &model.Assignment{JobID: jobID, TranslatorID: translatorID}
	err = tx.QueryRow(ctx,
		`INSERT INTO translator_job_rel (job_id, translator_id) VALUES ($1, $2) RETURNING id, created_at`,
		jobID, translatorID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return a, nil
}

// Create создаёт назначение без смены статуса заказа (админ-назначение, переназначение)
func (r *AssignmentRepository) Create(ctx context.Context, a *model.Assignment) error {
	query := `
		INSERT INTO translator_job_rel (job_id, translator_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, a.JobID, a.TranslatorID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	return nil
}

// Replace в одной транзакции отменяет текущее назначение и создаёт новое.
// Отмена идёт первой: частичный уникальный индекс допускает только одну
// активную запись на заказ
func (r *AssignmentRepository) Replace(ctx context.Context, currentID, jobID, translatorID int64, at time.Time) (*model.Assignment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE translator_job_rel SET cancel_at = $1 WHERE id = $2 AND cancel_at IS NULL`,
		at, currentID,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel assignment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, fmt.Errorf("assignment not found or already cancelled")
	}

	a := &model.Assignment{JobID: jobID, TranslatorID: translatorID}
	err = tx.QueryRow(ctx,
		`INSERT INTO translator_job_rel (job_id, translator_id) VALUES ($1, $2) RETURNING id, created_at`,
		jobID, translatorID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create replacement assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return a, nil
}

// CancelActiveForJob отменяет активное назначение заказа, если оно есть
func (r *AssignmentRepository) CancelActiveForJob(ctx context.Context, jobID int64, at time.Time) error {
	query := `UPDATE translator_job_rel SET cancel_at = $1 WHERE job_id = $2 AND cancel_at IS NULL AND completed_at IS NULL`

	if _, err := r.pool.Exec(ctx, query, at, jobID); err != nil {
		return fmt.Errorf("cancel active assignment: %w", err)
	}

	return nil
}

// Finalize закрывает назначение завершением сессии
func (r *AssignmentRepository) Finalize(ctx context.Context, id, completedBy int64, at time.Time) error {
	query := `
		UPDATE translator_job_rel
		SET completed_at = $1, completed_by = $2
		WHERE id = $3 AND completed_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, at, completedBy, id)
	if err != nil {
		return fmt.Errorf("finalize assignment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return errs.ErrAlreadyFinalized
	}

	return nil
}

// ActiveForJob получает активное назначение заказа
func (r *AssignmentRepository) ActiveForJob(ctx context.Context, jobID int64) (*model.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM translator_job_rel
		WHERE job_id = $1 AND cancel_at IS NULL AND completed_at IS NULL
		LIMIT 1
	`

	a, err := scanAssignment(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get active assignment: %w", err)
	}

	return a, nil
}

// CurrentForJob получает активное назначение, а если его нет — последнее завершённое.
// Используется для уведомлений после завершения сессии.
func (r *AssignmentRepository) CurrentForJob(ctx context.Context, jobID int64) (*model.Assignment, error) {
	a, err := r.ActiveForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	query := `
		SELECT ` + assignmentColumns + `
		FROM translator_job_rel
		WHERE job_id = $1 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`

	a, err = scanAssignment(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get last completed assignment: %w", err)
	}

	return a, nil
}

// HasActiveAt проверяет наличие у толка активного назначения на заказ с тем же сроком
func (r *AssignmentRepository) HasActiveAt(ctx context.Context, translatorID int64, due time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM translator_job_rel r
			JOIN jobs j ON j.id = r.job_id
			WHERE r.translator_id = $1 AND r.cancel_at IS NULL AND r.completed_at IS NULL
				AND j.due = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, translatorID, due).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active assignment at due: %w", err)
	}

	return exists, nil
}

// HasOverlapping проверяет пересечение интервала с активными назначениями толка
func (r *AssignmentRepository) HasOverlapping(ctx context.Context, translatorID int64, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM translator_job_rel r
			JOIN jobs j ON j.id = r.job_id
			WHERE r.translator_id = $1 AND r.cancel_at IS NULL AND r.completed_at IS NULL
				AND j.due < $3 AND j.due + (j.duration || ' minutes')::interval > $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, translatorID, from, to).Scan(&exists); err != nil {
		return false, fmt.Errorf("check overlapping assignment: %w", err)
	}

	return exists, nil
}

// AcceptedInTown проверяет, принимал ли толк заказы этого заказчика в этом городе
func (r *AssignmentRepository) AcceptedInTown(ctx context.Context, translatorID, customerID int64, town string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM translator_job_rel r
			JOIN jobs j ON j.id = r.job_id
			WHERE r.translator_id = $1 AND r.cancel_at IS NULL
				AND j.customer_id = $2 AND j.town = $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, translatorID, customerID, town).Scan(&exists); err != nil {
		return false, fmt.Errorf("check town affinity: %w", err)
	}

	return exists, nil
}
