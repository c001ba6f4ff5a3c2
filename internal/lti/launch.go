package lti

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/pkg/crypto"
	"github.com/charlesng35/coursehub/pkg/validator"
)

// Message types sent to tools.
const (
	MessageTypeLaunch      = "basic-lti-launch-request"
	MessageTypeContentItem = "ContentItemSelectionRequest"

	ltiVersion        = "LTI-1p0"
	productFamilyCode = "coursehub"
)

var (
	// ErrInvalidLaunchURL is returned when a tool's launch URL is not absolute http(s).
	ErrInvalidLaunchURL = errors.New("lti: launch url must be an absolute http(s) url")
	// ErrMissingSecret is returned when a launch is built without the tool's shared secret.
	ErrMissingSecret = errors.New("lti: shared secret is required")
	// ErrMissingUser is returned when a launch is built without a user id.
	ErrMissingUser = errors.New("lti: user id is required")
	// ErrMissingReturnURL is returned for deep linking launches without a content item return url.
	ErrMissingReturnURL = errors.New("lti: content item return url is required for deep linking")
)

// Consumer describes this platform to tools.
type Consumer struct {
	InstanceGUID         string
	InstanceName         string
	Locale               string
	ReturnURL            string
	ContentItemReturnURL string
	AcceptMediaTypes     []string
}

// LaunchUser is the person launching the tool. Roles are platform role ids.
type LaunchUser struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Avatar    string
	Locale    string
	Roles     []string
}

// LaunchContext is the course a launch happens in.
type LaunchContext struct {
	ID    string
	Title string
	Label string
}

// LaunchInput carries everything needed to build a signed launch.
type LaunchInput struct {
	Tool     models.LTITool
	Secret   string
	User     LaunchUser
	Context  *LaunchContext
	Consumer Consumer

	// Now and Nonce are filled in when zero.
	Now   time.Time
	Nonce string
}

// Param is one form field of a launch.
type Param struct {
	Name  string
	Value string
}

// Launch is a signed form to be posted to the tool's launch URL.
type Launch struct {
	Action      string
	MessageType string
	Params      []Param
}

// Value returns the value of the named parameter.
func (l *Launch) Value(name string) (string, bool) {
	for _, p := range l.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// BuildLaunch assembles and signs the launch parameters for a tool. Person fields
// are only included when the tool's privacy settings allow them.
func BuildLaunch(in LaunchInput) (*Launch, error) {
	tool := in.Tool
	if !validator.IsLaunchURL(tool.LaunchURL) {
		return nil, ErrInvalidLaunchURL
	}
	if in.Secret == "" {
		return nil, ErrMissingSecret
	}
	if strings.TrimSpace(in.User.ID) == "" {
		return nil, ErrMissingUser
	}

	messageType := MessageTypeLaunch
	if tool.ActiveDeepLinking {
		messageType = MessageTypeContentItem
		if strings.TrimSpace(in.Consumer.ContentItemReturnURL) == "" {
			return nil, ErrMissingReturnURL
		}
	}

	params := map[string]string{
		"lti_message_type": messageType,
		"lti_version":      ltiVersion,
		"user_id":          in.User.ID,
		"roles":            launchRoles(in.User.Roles),

		"launch_presentation_locale":          firstNonEmpty(in.User.Locale, in.Consumer.Locale, "en"),
		"launch_presentation_document_target": "iframe",

		"tool_consumer_info_product_family_code": productFamilyCode,
	}
	setIfPresent(params, "tool_consumer_instance_guid", in.Consumer.InstanceGUID)
	setIfPresent(params, "tool_consumer_instance_name", in.Consumer.InstanceName)
	setIfPresent(params, "launch_presentation_return_url", in.Consumer.ReturnURL)

	if messageType == MessageTypeLaunch {
		params["resource_link_id"] = strconv.FormatUint(uint64(tool.ID), 10)
		params["resource_link_title"] = tool.Name
		if tool.Description != nil {
			setIfPresent(params, "resource_link_description", *tool.Description)
		}
	} else {
		params["accept_media_types"] = strings.Join(in.Consumer.AcceptMediaTypes, ",")
		params["accept_presentation_document_targets"] = "iframe,window"
		params["accept_multiple"] = "false"
		params["content_item_return_url"] = in.Consumer.ContentItemReturnURL
	}

	if in.Context != nil && in.Context.ID != "" {
		params["context_id"] = in.Context.ID
		params["context_type"] = "CourseSection"
		setIfPresent(params, "context_title", in.Context.Title)
		setIfPresent(params, "context_label", in.Context.Label)
	}

	if tool.IsSharingName() {
		setIfPresent(params, "lis_person_name_given", in.User.FirstName)
		setIfPresent(params, "lis_person_name_family", in.User.LastName)
		setIfPresent(params, "lis_person_name_full", strings.TrimSpace(in.User.FirstName+" "+in.User.LastName))
	}
	if tool.IsSharingEmail() {
		setIfPresent(params, "lis_person_contact_email_primary", in.User.Email)
	}
	if tool.IsSharingPicture() {
		setIfPresent(params, "user_image", in.User.Avatar)
	}

	for _, custom := range tool.CustomParamPairs() {
		params[custom.Key] = custom.Value
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	nonce := in.Nonce
	if nonce == "" {
		generated, err := crypto.RandomHex(16)
		if err != nil {
			return nil, fmt.Errorf("lti: nonce: %w", err)
		}
		nonce = generated
	}

	params["oauth_consumer_key"] = tool.ConsumerKey
	params["oauth_nonce"] = nonce
	params["oauth_timestamp"] = strconv.FormatInt(now.Unix(), 10)
	params["oauth_signature_method"] = signatureMethod
	params["oauth_version"] = "1.0"
	params["oauth_callback"] = "about:blank"

	signature, err := Sign("POST", tool.LaunchURL, params, in.Secret)
	if err != nil {
		return nil, err
	}
	params["oauth_signature"] = signature

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	launch := &Launch{Action: tool.LaunchURL, MessageType: messageType, Params: make([]Param, 0, len(names))}
	for _, name := range names {
		launch.Params = append(launch.Params, Param{Name: name, Value: params[name]})
	}
	return launch, nil
}

var launchRoleNames = map[string]string{
	"admin":   "Administrator",
	"teacher": "Instructor",
	"student": "Learner",
}

func launchRoles(roleIDs []string) string {
	seen := make(map[string]struct{})
	var roles []string
	for _, id := range roleIDs {
		name, ok := launchRoleNames[strings.ToLower(strings.TrimSpace(id))]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		roles = append(roles, name)
	}
	if len(roles) == 0 {
		return "Learner"
	}
	sort.Strings(roles)
	return strings.Join(roles, ",")
}

func setIfPresent(params map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		params[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
