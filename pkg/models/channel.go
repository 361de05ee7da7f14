package models

// ChannelKind is the channel type.
type ChannelKind string

const (
	ChannelPublic  ChannelKind = "public"
	ChannelPrivate ChannelKind = "private"
	ChannelDirect  ChannelKind = "dm"
	ChannelBot     ChannelKind = "bot"
)

// WorkspaceNone is the sentinel workspace id for channels created outside
// any workspace.
const WorkspaceNone = "w-none"

type Channel struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	CreatedBy string      `json:"created_by"`
	Workspace string      `json:"workspace"`
	CreatedTS int64       `json:"created_ts"`
}

// Membership is the sole source of truth for "is a member". LastReadTS is
// the read watermark behind unread counts; there is no persisted counter.
type Membership struct {
	ChannelID  string `json:"channel_id"`
	UserID     string `json:"user_id"`
	JoinedTS   int64  `json:"joined_ts"`
	LastReadTS int64  `json:"last_read_ts"`
}

// ChannelView is a channel enriched with derived per-caller state. It is
// assembled on read; none of the derived fields are stored.
type ChannelView struct {
	Channel
	Members     []string `json:"members"`
	UnreadCount int      `json:"unread_count"`
}
