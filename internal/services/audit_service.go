package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/auditctx"
	"github.com/charlesng35/coursehub/internal/models"
)

// AuditEntry captures a single audit event to persist. Actor fields left empty are
// taken from the auditctx.Actor carried by the context.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	UserID   string
	Action   string
	Result   string
	Resource string
	Since    *time.Time
	Until    *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditOption customises an AuditService.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock used for retention cut-offs.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	svc := &AuditService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Log stores an audit entry, marshalling metadata into JSON form.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	entry = withActor(ctx, entry)

	var payload datatypes.JSON
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	log := models.AuditLog{
		Action:    strings.TrimSpace(entry.Action),
		Resource:  strings.TrimSpace(entry.Resource),
		Result:    strings.TrimSpace(entry.Result),
		Username:  strings.TrimSpace(entry.Username),
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
		Metadata:  payload,
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		log.UserID = &id
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("audit service: create log: %w", err)
	}
	return nil
}

// List returns paginated audit logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page, perPage := pagination(opts.Page, opts.PageSize, 50, 200)

	var (
		results []models.AuditLog
		total   int64
	)

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

func withActor(ctx context.Context, entry AuditEntry) AuditEntry {
	actor, ok := auditctx.FromContext(ctx)
	if !ok {
		return entry
	}
	if entry.UserID == nil && actor.UserID != "" {
		id := actor.UserID
		entry.UserID = &id
	}
	if entry.Username == "" {
		entry.Username = actor.Username
	}
	if entry.IPAddress == "" {
		entry.IPAddress = actor.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = actor.UserAgent
	}
	return entry
}
