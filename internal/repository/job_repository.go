package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tolkdesk/dispatch/internal/model"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, customer_id, language_id, job_type, certified, gender, immediate,
		phone_enabled, physical_enabled, due, duration, status, session_time,
		admin_comments, reference, town, customer_email, by_admin, email_sent, flagged,
		flag_reason, manually_handled, specific_translator_id, will_expire_at, end_at,
		withdraw_at, created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	err := row.Scan(
		&job.ID,
		&job.CustomerID,
		&job.LanguageID,
		&job.JobType,
		&job.Certified,
		&job.Gender,
		&job.Immediate,
		&job.PhoneEnabled,
		&job.PhysicalEnabled,
		&job.Due,
		&job.Duration,
		&job.Status,
		&job.SessionTime,
		&job.AdminComments,
		&job.Reference,
		&job.Town,
		&job.CustomerEmail,
		&job.ByAdmin,
		&job.EmailSent,
		&job.Flagged,
		&job.FlagReason,
		&job.ManuallyHandled,
		&job.SpecificTranslatorID,
		&job.WillExpireAt,
		&job.EndAt,
		&job.WithdrawAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Create создаёт новый заказ
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (customer_id, language_id, job_type, certified, gender, immediate,
			phone_enabled, physical_enabled, due, duration, status, session_time,
			admin_comments, reference, town, customer_email, by_admin, email_sent, flagged,
			flag_reason, manually_handled, specific_translator_id, will_expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		job.CustomerID,
		job.LanguageID,
		job.JobType,
		job.Certified,
		job.Gender,
		job.Immediate,
		job.PhoneEnabled,
		job.PhysicalEnabled,
		job.Due,
		job.Duration,
		job.Status,
		job.SessionTime,
		job.AdminComments,
		job.Reference,
		job.Town,
		job.CustomerEmail,
		job.ByAdmin,
		job.EmailSent,
		job.Flagged,
		job.FlagReason,
		job.ManuallyHandled,
		job.SpecificTranslatorID,
		job.WillExpireAt,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	return nil
}

// GetByID получает заказ по ID
func (r *JobRepository) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}

	return job, nil
}

// Update сохраняет изменяемые поля заказа
func (r *JobRepository) Update(ctx context.Context, job *model.Job) error {
	query := `
		UPDATE jobs
		SET language_id = $1, due = $2, status = $3, session_time = $4, admin_comments = $5,
			reference = $6, customer_email = $7, town = $8, email_sent = $9, will_expire_at = $10,
			end_at = $11, withdraw_at = $12, created_at = $13, updated_at = now()
		WHERE id = $14
	`

	result, err := r.pool.Exec(ctx, query,
		job.LanguageID,
		job.Due,
		job.Status,
		job.SessionTime,
		job.AdminComments,
		job.Reference,
		job.CustomerEmail,
		job.Town,
		job.EmailSent,
		job.WillExpireAt,
		job.EndAt,
		job.WithdrawAt,
		job.CreatedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found")
	}

	return nil
}

// UpdateStatus обновляет статус заказа
func (r *JobRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	query := `UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found")
	}

	return nil
}

// PendingJobs получает все заказы в статусе pending
func (r *JobRepository) PendingJobs(ctx context.Context) ([]*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'pending' ORDER BY due ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// ExpiredPending получает pending заказы с истёкшим сроком приёма
func (r *JobRepository) ExpiredPending(ctx context.Context, now time.Time) ([]*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'pending' AND will_expire_at <= $1 ORDER BY will_expire_at ASC`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("get expired pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
