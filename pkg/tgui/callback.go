package tgui

import "strings"

// maxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It applies to the full packed string, "scope:action:payload".
const maxCallbackDataLen = 64

// Data formats inline callback data as "scope:action:payload". Payload is
// kept as-is (no escaping). Telegram rejects callback_data over 64 bytes, so
// oversized payloads are cut at the limit.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	s := scope + ":" + action
	if payload != "" {
		s += ":" + payload
	}
	if len(s) > maxCallbackDataLen {
		s = s[:maxCallbackDataLen]
	}
	return s
}
