package app

import (
	"strings"

	"github.com/charlesng35/coursehub/internal/lti"
)

// ConsumerProfile converts LTIConfig into the launch consumer description.
func (c LTIConfig) ConsumerProfile() lti.Consumer {
	locale := strings.TrimSpace(c.Locale)
	if locale == "" {
		locale = "en"
	}

	accept := make([]string, 0, len(c.AcceptTypes))
	for _, t := range c.AcceptTypes {
		if t = strings.TrimSpace(t); t != "" {
			accept = append(accept, t)
		}
	}

	return lti.Consumer{
		InstanceGUID:         strings.TrimSpace(c.InstanceGUID),
		InstanceName:         strings.TrimSpace(c.InstanceName),
		Locale:               locale,
		ReturnURL:            strings.TrimSpace(c.ReturnURL),
		ContentItemReturnURL: strings.TrimSpace(c.ContentItemURL),
		AcceptMediaTypes:     accept,
	}
}
