package tgui

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "{action}_{arg1}_{arg2}...". Empty args
// are dropped. Neither the action nor the args may contain "_".
func Data(action string, args ...string) (string, error) {
	action = strings.TrimSpace(action)
	if action == "" || strings.Contains(action, "_") {
		return "", fmt.Errorf("tgui: invalid callback action %q", action)
	}
	var b strings.Builder
	b.WriteString(action)
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if strings.Contains(a, "_") {
			return "", fmt.Errorf("tgui: callback arg %q contains '_'", a)
		}
		b.WriteByte('_')
		b.WriteString(a)
	}
	if b.Len() > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return b.String(), nil
}

// Args splits a callback payload (data without its action) into its args.
func Args(payload string) []string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	return strings.Split(payload, "_")
}
