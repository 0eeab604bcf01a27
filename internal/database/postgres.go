package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

type PgGoChatRepository struct {
	conn *sql.DB
}

func NewPgGoChatRepository(dsn string) (*PgGoChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgGoChatRepository{conn: db}, nil
}

func (db *PgGoChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgGoChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
