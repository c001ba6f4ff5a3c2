package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CustomParamPrefix is prepended to every key parsed from LTITool.CustomParams.
const CustomParamPrefix = "custom_"

var (
	// ErrPrivacyUnset is returned when a tool has no privacy value stored.
	ErrPrivacyUnset = errors.New("lti tool: privacy is not set")
	// ErrPrivacyCorrupt is returned when the stored privacy value cannot be decoded.
	ErrPrivacyCorrupt = errors.New("lti tool: privacy value is corrupt")
)

// ToolPrivacy lists which launching-user attributes a tool may receive.
type ToolPrivacy struct {
	ShareName    bool `json:"share_name"`
	ShareEmail   bool `json:"share_email"`
	SharePicture bool `json:"share_picture"`
}

// CustomParam is one parsed custom launch parameter.
type CustomParam struct {
	Key   string
	Value string
}

// LTITool is the configuration of one external tool integration. A tool without
// a course is global. A tool linked to a parent holds copies of the parent's
// credentials and privacy taken when the link was made.
type LTITool struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Name              string         `gorm:"not null" json:"name"`
	Description       *string        `gorm:"type:text" json:"description,omitempty"`
	LaunchURL         string         `gorm:"column:launch_url;not null" json:"launch_url"`
	ConsumerKey       string         `gorm:"not null" json:"consumer_key"`
	SharedSecret      string         `gorm:"not null" json:"-"`
	CustomParams      *string        `gorm:"type:text" json:"custom_params,omitempty"`
	ActiveDeepLinking bool           `gorm:"not null;default:false" json:"active_deep_linking"`
	Privacy           datatypes.JSON `json:"privacy,omitempty"`

	CourseID *uint   `gorm:"column:c_id;index" json:"course_id,omitempty"`
	Course   *Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`

	GradebookEvalID *uint                `gorm:"column:gradebook_eval_id;index" json:"gradebook_eval_id,omitempty"`
	GradebookEval   *GradebookEvaluation `gorm:"foreignKey:GradebookEvalID;constraint:OnDelete:SET NULL" json:"-"`

	ParentID *uint     `gorm:"index" json:"parent_id,omitempty"`
	Parent   *LTITool  `gorm:"foreignKey:ParentID;constraint:OnDelete:SET NULL" json:"-"`
	Children []LTITool `gorm:"foreignKey:ParentID" json:"children,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the table name used by the tool plugin.
func (LTITool) TableName() string { return "plugin_ims_lti_tool" }

// BeforeSave trims and validates required fields.
func (t *LTITool) BeforeSave(tx *gorm.DB) error {
	t.Name = strings.TrimSpace(t.Name)
	t.LaunchURL = strings.TrimSpace(t.LaunchURL)
	t.ConsumerKey = strings.TrimSpace(t.ConsumerKey)

	switch {
	case t.Name == "":
		return errors.New("lti tool: name is required")
	case t.LaunchURL == "":
		return errors.New("lti tool: launch_url is required")
	case t.ConsumerKey == "":
		return errors.New("lti tool: consumer_key is required")
	case t.SharedSecret == "":
		return errors.New("lti tool: shared_secret is required")
	}
	if t.ParentID != nil && t.ID != 0 && *t.ParentID == t.ID {
		return errors.New("lti tool: a tool cannot be its own parent")
	}
	return nil
}

// IsGlobal reports whether the tool is available platform wide.
func (t *LTITool) IsGlobal() bool {
	return t.CourseID == nil
}

// SetPrivacy stores the three sharing flags.
func (t *LTITool) SetPrivacy(shareName, shareEmail, sharePicture bool) {
	encoded, _ := json.Marshal(ToolPrivacy{
		ShareName:    shareName,
		ShareEmail:   shareEmail,
		SharePicture: sharePicture,
	})
	t.Privacy = datatypes.JSON(encoded)
}

// UnserializePrivacy decodes the stored sharing flags. The value is decoded on
// every call.
func (t *LTITool) UnserializePrivacy() (ToolPrivacy, error) {
	raw := bytes.TrimSpace(t.Privacy)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ToolPrivacy{}, ErrPrivacyUnset
	}

	var privacy ToolPrivacy
	if err := json.Unmarshal(raw, &privacy); err != nil {
		return ToolPrivacy{}, fmt.Errorf("%w: %v", ErrPrivacyCorrupt, err)
	}
	return privacy, nil
}

// IsSharingName is false when privacy is unset or unreadable.
func (t *LTITool) IsSharingName() bool {
	p, err := t.UnserializePrivacy()
	return err == nil && p.ShareName
}

// IsSharingEmail is false when privacy is unset or unreadable.
func (t *LTITool) IsSharingEmail() bool {
	p, err := t.UnserializePrivacy()
	return err == nil && p.ShareEmail
}

// IsSharingPicture is false when privacy is unset or unreadable.
func (t *LTITool) IsSharingPicture() bool {
	p, err := t.UnserializePrivacy()
	return err == nil && p.SharePicture
}

// SetParent links the tool to parent and copies the parent's consumer key, shared
// secret and privacy onto the tool. The copy happens once: later changes to the
// parent are not seen by the child. A nil parent detaches the tool and leaves the
// copied values in place.
func (t *LTITool) SetParent(parent *LTITool) {
	if parent == nil {
		t.Parent = nil
		t.ParentID = nil
		return
	}

	t.Parent = parent
	if parent.ID != 0 {
		id := parent.ID
		t.ParentID = &id
	} else {
		t.ParentID = nil
	}

	t.SharedSecret = parent.SharedSecret
	t.ConsumerKey = parent.ConsumerKey
	if parent.Privacy == nil {
		t.Privacy = nil
	} else {
		t.Privacy = append(datatypes.JSON(nil), parent.Privacy...)
	}
}

// CustomParamPairs parses CustomParams in source line order. Lines without
// exactly one "=" and lines with an empty key are skipped. When a key repeats,
// the last value wins and keeps the position of its first occurrence.
func (t *LTITool) CustomParamPairs() []CustomParam {
	if t.CustomParams == nil {
		return nil
	}

	var pairs []CustomParam
	index := make(map[string]int)
	for _, line := range strings.Split(*t.CustomParams, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		key = CustomParamPrefix + key
		value := strings.TrimSpace(parts[1])

		if i, ok := index[key]; ok {
			pairs[i].Value = value
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, CustomParam{Key: key, Value: value})
	}
	return pairs
}

// ParseCustomParams returns the custom parameters keyed by their prefixed name.
func (t *LTITool) ParseCustomParams() map[string]string {
	pairs := t.CustomParamPairs()
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		params[p.Key] = p.Value
	}
	return params
}
