package retry

import (
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// NoticeKind identifies a side-channel notice.
type NoticeKind string

const (
	NoticeSwitchingProvider NoticeKind = "switching_provider"
	NoticeEscalated         NoticeKind = "escalated"
	NoticeBackoff           NoticeKind = "backoff"
)

// Notice is a user-visible progress event that is not a result.
type Notice struct {
	Kind     NoticeKind
	Provider string
	Role     models.Role
	Attempt  int
	Message  string
	Time     time.Time
}

// NoticeFunc receives notices. It must not block.
type NoticeFunc func(Notice)
