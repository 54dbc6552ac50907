package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/voicedrop-backend/internal/model"
)

func TestForeignRef(t *testing.T) {
	tests := []struct {
		name     string
		campaign string
		script   string
		contact  string
		mode     model.DeliveryMode
		want     string
	}{
		{"personalized ignores contact", "Spring Promo", "s1", "k1", model.ModePersonalized, "spring-promo-s1"},
		{"broadcast appends contact", "Spring Promo", "s1", "k1", model.ModeBroadcast, "spring-promo-s1-k1"},
		{"punctuation collapses", "  Open House!! (May)  ", "s2", "", model.ModePersonalized, "open-house-may-s2"},
		{"empty name", "", "s3", "", model.ModePersonalized, "campaign-s3"},
		{"non latin name", "Été", "s4", "", model.ModePersonalized, "t-s4"},
		{"only symbols", "***", "s5", "k5", model.ModeBroadcast, "campaign-s5-k5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForeignRef(tt.campaign, tt.script, tt.contact, tt.mode))
		})
	}
}
