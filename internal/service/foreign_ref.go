package service

import (
	"strings"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

// ForeignRef builds the correlation tag sent with every drop:
// <campaign-slug>-<scriptID>, plus -<contactID> in broadcast mode where one
// script reaches many contacts.
func ForeignRef(campaignName, scriptID, contactID string, mode model.DeliveryMode) string {
	parts := []string{slug(campaignName), scriptID}
	if mode == model.ModeBroadcast && contactID != "" {
		parts = append(parts, contactID)
	}
	return strings.Join(parts, "-")
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "campaign"
	}
	return s
}
