package models

import "strconv"

// CallType mirrors the platform call log type codes.
type CallType int

const (
	CallIncoming CallType = iota + 1
	CallOutgoing
	CallMissed
	CallVoicemail
	CallRejected
	CallBlocked
	CallAnsweredExternally
)

func (c CallType) String() string {
	switch c {
	case CallIncoming:
		return "incoming"
	case CallOutgoing:
		return "outgoing"
	case CallMissed:
		return "missed"
	case CallVoicemail:
		return "voicemail"
	case CallRejected:
		return "rejected"
	case CallBlocked:
		return "blocked"
	case CallAnsweredExternally:
		return "answered_externally"
	}
	return "unknown(" + strconv.Itoa(int(c)) + ")"
}

// ParseCallType accepts either the numeric code or the name returned by String.
func ParseCallType(s string) (CallType, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return CallType(n), n > 0
	}
	for c := CallIncoming; c <= CallAnsweredExternally; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// CallLogRecord is one call as uploaded to the management server.
type CallLogRecord struct {
	PhoneNumber   string   `json:"phoneNumber"`
	ContactName   string   `json:"contactName,omitempty"`
	CallType      CallType `json:"callType"`
	Duration      int64    `json:"duration"`      // seconds
	CallTimestamp int64    `json:"callTimestamp"` // epoch ms
}
