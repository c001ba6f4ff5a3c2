package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/pkg/logger"
)

// MessageDTO is a message as seen from one mailbox.
type MessageDTO struct {
	ID           uint       `json:"id"`
	SenderID     string     `json:"sender_id"`
	ReceiverID   string     `json:"receiver_id"`
	ReceiverName string     `json:"receiver_name,omitempty"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SendMessageInput is a new private message.
type SendMessageInput struct {
	SenderID   string `json:"sender_id" validate:"required"`
	ReceiverID string `json:"receiver_id" validate:"required"`
	Title      string `json:"title" validate:"required,max=255"`
	Content    string `json:"content"`
}

// ListOutboxInput selects one page of a sender's outbox.
type ListOutboxInput struct {
	SenderID string
	Page     int
	PerPage  int
}

// MessageService stores private messages. Every delete is scoped to the sender's
// own outbox copy and is a soft delete; PurgeDeleted removes the rows for good.
type MessageService struct {
	db    *gorm.DB
	audit *AuditService
	log   *zap.Logger
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, audit *AuditService) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}
	return &MessageService{db: db, audit: audit, log: logger.WithModule("messages")}, nil
}

// Send writes the sender's outbox copy and the receiver's inbox copy and returns
// the outbox copy.
func (s *MessageService) Send(ctx context.Context, input SendMessageInput) (*MessageDTO, error) {
	ctx = ensureContext(ctx)

	input.SenderID = strings.TrimSpace(input.SenderID)
	input.ReceiverID = strings.TrimSpace(input.ReceiverID)
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var outbox models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receiver models.User
		if err := tx.Select("id").Take(&receiver, "id = ?", input.ReceiverID).Error; err != nil {
			return notFound(err, "receiver not found")
		}

		outbox = models.Message{
			SenderID:   input.SenderID,
			ReceiverID: input.ReceiverID,
			Box:        models.MessageBoxOutbox,
			Title:      input.Title,
			Content:    input.Content,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}
		inbox := outbox
		inbox.ID = 0
		inbox.Box = models.MessageBoxInbox
		return tx.Create(&inbox).Error
	})
	if err != nil {
		return nil, serviceError(err, "message service: send")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "message.send",
		Resource: fmt.Sprintf("message:%d", outbox.ID),
		Result:   "success",
		Metadata: map[string]any{"receiver_id": input.ReceiverID},
	})

	dto := toMessageDTO(outbox)
	return &dto, nil
}

// ListOutbox returns one page of the sender's undeleted outbox, newest first.
func (s *MessageService) ListOutbox(ctx context.Context, input ListOutboxInput) ([]MessageDTO, int64, error) {
	ctx = ensureContext(ctx)

	senderID := strings.TrimSpace(input.SenderID)
	if senderID == "" {
		return nil, 0, errors.New("message service: sender id is required")
	}
	page, perPage := pagination(input.Page, input.PerPage, 20, 100)

	query := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND box = ?", senderID, models.MessageBoxOutbox)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("message service: count outbox: %w", err)
	}

	var rows []models.Message
	if err := query.
		Preload("Receiver").
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("message service: list outbox: %w", err)
	}

	out := make([]MessageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toMessageDTO(row))
	}
	return out, total, nil
}

// DeleteBySender removes the sender's outbox copy of messageID. Ids that do not
// exist, were already deleted, or belong to another sender are ignored.
func (s *MessageService) DeleteBySender(ctx context.Context, senderID string, messageID uint) error {
	_, err := s.deleteOutbox(ctx, senderID, []uint{messageID}, "message service: delete")
	return err
}

// DeleteManyBySender removes several outbox copies and returns how many rows went.
func (s *MessageService) DeleteManyBySender(ctx context.Context, senderID string, ids []uint) (int64, error) {
	return s.deleteOutbox(ctx, senderID, ids, "message service: delete many")
}

func (s *MessageService) deleteOutbox(ctx context.Context, senderID string, ids []uint, op string) (int64, error) {
	ctx = ensureContext(ctx)

	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return 0, fmt.Errorf("%s: sender id is required", op)
	}
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Where("sender_id = ? AND box = ? AND id IN ?", senderID, models.MessageBoxOutbox, ids).
		Delete(&models.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("%s: %w", op, result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("outbox messages deleted",
			zap.String("sender_id", senderID),
			zap.Int64("removed", result.RowsAffected),
		)
		recordAudit(s.audit, ctx, AuditEntry{
			Action:   "message.delete",
			Resource: "outbox:" + senderID,
			Result:   "success",
			Metadata: map[string]any{"ids": ids, "removed": result.RowsAffected},
		})
	}
	return result.RowsAffected, nil
}

// PurgeDeleted permanently removes rows soft deleted before olderThan.
func (s *MessageService) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", olderThan).
		Delete(&models.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("message service: purge deleted: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("purged deleted messages", zap.Int64("rows", result.RowsAffected), zap.Time("older_than", olderThan))
	}
	return result.RowsAffected, nil
}

func toMessageDTO(m models.Message) MessageDTO {
	dto := MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Title:      m.Title,
		Content:    m.Content,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
	if m.Receiver != nil {
		dto.ReceiverName = m.Receiver.FullName()
	}
	return dto
}
