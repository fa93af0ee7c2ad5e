package syncworker

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseEnabled interprets a feature gate response. It accepts a bare boolean
// or an envelope {"status":"OK","data":<bool or "true"/"false">}. Anything it
// cannot read as an explicit true is treated as disabled.
func ParseEnabled(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if bare, ok := parseBool(string(trimmed)); ok {
		return bare
	}
	if !gjson.ValidBytes(trimmed) {
		return false
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return false
	}
	if !strings.EqualFold(root.Get("status").String(), "OK") {
		return false
	}
	data := root.Get("data")
	switch data.Type {
	case gjson.True:
		return true
	case gjson.String:
		v, _ := parseBool(strings.TrimSpace(data.Str))
		return v
	}
	return false
}

func parseBool(s string) (value, ok bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}
