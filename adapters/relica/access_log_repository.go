package relica

import (
	"context"
	"database/sql"

	"github.com/coregx/relica"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// AccessLogRepository implements leadbus.AccessLogRepository using Relica ORM.
type AccessLogRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewAccessLogRepository creates a new AccessLogRepository with default table prefix.
func NewAccessLogRepository(sqlDB *sql.DB, driverName string) *AccessLogRepository {
	return NewAccessLogRepositoryWithPrefix(sqlDB, driverName, model.TablePrefix())
}

// NewAccessLogRepositoryWithPrefix creates a new AccessLogRepository with custom table prefix.
func NewAccessLogRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *AccessLogRepository {
	return &AccessLogRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *AccessLogRepository) tableName() string {
	return r.tablePrefix + "access_log"
}

// Save appends an access log entry.
func (r *AccessLogRepository) Save(ctx context.Context, m model.AccessLog) (model.AccessLog, error) {
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		return m, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to insert access log", err)
	}
	return m, nil
}

// FindRecent returns the latest entries, newest first.
func (r *AccessLogRepository) FindRecent(ctx context.Context, limit int) ([]model.AccessLog, error) {
	var logs []model.AccessLog
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&logs)
	if err != nil {
		return nil, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to find recent access logs", err)
	}
	return logs, nil
}
