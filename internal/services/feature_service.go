package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/database"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
)

// FeatureSet is a point-in-time view of every platform tool switch.
type FeatureSet struct {
	Messaging       bool `json:"messaging"`
	Social          bool `json:"social"`
	ExtendedProfile bool `json:"extended_profile"`
}

// FeatureDTO describes one switch and where its value came from.
type FeatureDTO struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Stored  bool   `json:"stored"`
}

var featureNames = []string{
	database.SettingMessageTool,
	database.SettingSocialTool,
	database.SettingExtendedProfile,
}

// FeatureService reads and writes platform tool switches stored in system settings.
// Missing or unreadable values fall back to the configured defaults.
type FeatureService struct {
	db       *gorm.DB
	audit    *AuditService
	defaults database.FeatureDefaults
}

// NewFeatureService constructs a FeatureService.
func NewFeatureService(db *gorm.DB, audit *AuditService, defaults database.FeatureDefaults) (*FeatureService, error) {
	if db == nil {
		return nil, errors.New("feature service: db is required")
	}
	return &FeatureService{db: db, audit: audit, defaults: defaults}, nil
}

// Enabled reports whether the named switch is on.
func (s *FeatureService) Enabled(ctx context.Context, name string) (bool, error) {
	ctx = ensureContext(ctx)

	fallback, ok := s.defaultFor(name)
	if !ok {
		return false, unknownFeature(name)
	}
	enabled, _, err := s.read(ctx, name, fallback)
	return enabled, err
}

// Set stores the value of the named switch.
func (s *FeatureService) Set(ctx context.Context, name string, enabled bool) error {
	ctx = ensureContext(ctx)

	if _, ok := s.defaultFor(name); !ok {
		return unknownFeature(name)
	}
	if err := database.UpsertSystemSetting(ctx, s.db, name, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("feature service: set %s: %w", name, err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "feature.update",
		Resource: "feature:" + name,
		Result:   "success",
		Metadata: map[string]any{"enabled": enabled},
	})
	return nil
}

// Snapshot reads every switch at once.
func (s *FeatureService) Snapshot(ctx context.Context) (FeatureSet, error) {
	ctx = ensureContext(ctx)

	var (
		set FeatureSet
		err error
	)
	if set.Messaging, _, err = s.read(ctx, database.SettingMessageTool, s.defaults.Messaging); err != nil {
		return FeatureSet{}, err
	}
	if set.Social, _, err = s.read(ctx, database.SettingSocialTool, s.defaults.Social); err != nil {
		return FeatureSet{}, err
	}
	if set.ExtendedProfile, _, err = s.read(ctx, database.SettingExtendedProfile, s.defaults.ExtendedProfile); err != nil {
		return FeatureSet{}, err
	}
	return set, nil
}

// List returns every switch in a stable order.
func (s *FeatureService) List(ctx context.Context) ([]FeatureDTO, error) {
	ctx = ensureContext(ctx)

	out := make([]FeatureDTO, 0, len(featureNames))
	for _, name := range featureNames {
		fallback, _ := s.defaultFor(name)
		enabled, stored, err := s.read(ctx, name, fallback)
		if err != nil {
			return nil, err
		}
		out = append(out, FeatureDTO{Name: name, Enabled: enabled, Stored: stored})
	}
	return out, nil
}

func (s *FeatureService) read(ctx context.Context, name string, fallback bool) (bool, bool, error) {
	raw, err := database.GetSystemSetting(ctx, s.db, name)
	if err != nil {
		return false, false, fmt.Errorf("feature service: read %s: %w", name, err)
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback, false, nil
	}
	return value, true, nil
}

func (s *FeatureService) defaultFor(name string) (bool, bool) {
	switch name {
	case database.SettingMessageTool:
		return s.defaults.Messaging, true
	case database.SettingSocialTool:
		return s.defaults.Social, true
	case database.SettingExtendedProfile:
		return s.defaults.ExtendedProfile, true
	default:
		return false, false
	}
}

func unknownFeature(name string) error {
	return apperrors.ErrNotFound.WithMessage(fmt.Sprintf("unknown feature %q", name))
}
