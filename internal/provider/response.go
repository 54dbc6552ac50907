package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// The provider has shipped several response shapes over time; identifiers are
// looked up in this order, first at the top level and then under "data".
var (
	mediaRefKeys  = []string{"media_ref", "mediaRef", "media_id", "mediaId", "recording_id", "recordingId", "file_id", "id", "url"}
	messageIDKeys = []string{"drop_id", "dropId", "message_id", "messageId", "id"}
)

var errNoIdentifier = errors.New("provider response carries no identifier")

func extractID(body []byte, keys []string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}

	if rejected, reason := rejection(payload); rejected {
		return "", fmt.Errorf("provider rejected request: %s", reason)
	}

	if id := lookupID(payload, keys); id != "" {
		return id, nil
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if id := lookupID(data, keys); id != "" {
			return id, nil
		}
	}
	return "", errNoIdentifier
}

func lookupID(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// rejection detects a 2xx body that still reports failure.
func rejection(payload map[string]interface{}) (bool, string) {
	if ok, present := payload["success"].(bool); present && !ok {
		return true, reasonFrom(payload)
	}
	if s, present := payload["status"].(string); present && strings.EqualFold(s, "error") {
		return true, reasonFrom(payload)
	}
	return false, ""
}

func reasonFrom(payload map[string]interface{}) string {
	for _, k := range []string{"message", "error", "reason"} {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return "no reason given"
}
