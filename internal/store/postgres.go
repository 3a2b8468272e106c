package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
)

// sessionRecord is the gorm entity; column names match the original
// support_eye_db schema (token, client_phone, carrier, status).
type sessionRecord struct {
	Token       string    `gorm:"column:token;primaryKey"`
	ClientPhone string    `gorm:"column:client_phone"`
	Carrier     string    `gorm:"column:carrier"`
	Status      string    `gorm:"column:status;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (sessionRecord) TableName() string { return "sessions" }

// PostgresStore implements SessionStore on gorm/Postgres.
type PostgresStore struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the sessions table.
func Open(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing gorm handle (used by tests).
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess *domain.Session) error {
	rec := toRecord(sess)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.ErrDuplicateToken
		}
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUnknownSession
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return fromRecord(&rec), nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, token string, status domain.SessionStatus) error {
	res := s.db.WithContext(ctx).
		Model(&sessionRecord{}).
		Where("token = ?", token).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrUnknownSession
	}
	return nil
}

func toRecord(sess *domain.Session) *sessionRecord {
	return &sessionRecord{
		Token:       sess.Token,
		ClientPhone: sess.ClientPhone,
		Carrier:     sess.CarrierGateway,
		Status:      string(sess.Status),
		CreatedAt:   sess.CreatedAt,
	}
}

func fromRecord(rec *sessionRecord) *domain.Session {
	return &domain.Session{
		Token:          rec.Token,
		ClientPhone:    rec.ClientPhone,
		CarrierGateway: rec.Carrier,
		Status:         domain.SessionStatus(rec.Status),
		CreatedAt:      rec.CreatedAt,
	}
}
