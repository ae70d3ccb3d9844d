package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"exam-portal/logger"
)

// InitDB initializes the PostgreSQL database connection pool
func InitDB(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().Msg("Successfully connected to PostgreSQL database")
	return pool, nil
}

// CreateSchema sets up the tables of the exam portal. It is idempotent.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS roles (
		name VARCHAR(50) PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(150) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		first_name VARCHAR(150) NOT NULL DEFAULT '',
		last_name VARCHAR(150) NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role VARCHAR(50) NOT NULL REFERENCES roles(name),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		description TEXT NOT NULL,
		teacher_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exams (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		name VARCHAR(100) NOT NULL,
		description TEXT NOT NULL,
		duration_seconds BIGINT NOT NULL CHECK (duration_seconds >= 0),
		exam_type VARCHAR(10) NOT NULL CHECK (exam_type IN ('Quiz', 'Exam')),
		code UUID NOT NULL UNIQUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		question_text TEXT NOT NULL,
		explanation_text TEXT NOT NULL DEFAULT '',
		explanation_video TEXT
	);

	CREATE TABLE IF NOT EXISTS choices (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		choice_text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS user_answers (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		choice_id BIGINT REFERENCES choices(id) ON DELETE SET NULL,
		UNIQUE (user_id, question_id)
	);

	CREATE TABLE IF NOT EXISTS answer_intervals (
		id BIGSERIAL PRIMARY KEY,
		user_answer_id BIGINT NOT NULL REFERENCES user_answers(id) ON DELETE CASCADE,
		start_time TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE,
		CHECK (end_time IS NULL OR end_time >= start_time)
	);

	CREATE TABLE IF NOT EXISTS exam_results (
		id BIGSERIAL PRIMARY KEY,
		exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		score INT NOT NULL,
		total_questions INT NOT NULL,
		percentage DOUBLE PRECISION NOT NULL,
		unanswered_questions INT NOT NULL,
		incorrect_answers INT NOT NULL,
		answered_at TIMESTAMP WITH TIME ZONE NOT NULL,
		start_time TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE NOT NULL,
		submitted BOOLEAN NOT NULL DEFAULT TRUE,
		time_up BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (exam_id, user_id),
		CHECK (score + incorrect_answers + unanswered_questions = total_questions)
	);

	CREATE INDEX IF NOT EXISTS idx_answer_intervals_user_answer ON answer_intervals(user_answer_id);
	CREATE INDEX IF NOT EXISTS idx_questions_exam ON questions(exam_id);

	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		action VARCHAR(255) NOT NULL,
		actor VARCHAR(255) NOT NULL, -- username or 'system'
		target TEXT,                 -- e.g. course:12, exam:3
		notes TEXT
	);
	`
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}
