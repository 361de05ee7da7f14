package models

type Message struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
	// Parent links a reply to its thread root. Replies are excluded from
	// channel listings and only appear in the thread listing.
	Parent      string   `json:"parent,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	// Reactions maps a reaction token to the set of user ids that used it.
	Reactions map[string][]string `json:"reactions,omitempty"`
	// Version starts at 1 and increases by exactly 1 on every successful
	// content edit. Edits are gated on it; see messages.Update.
	Version  int64  `json:"version"`
	EditedTS int64  `json:"edited_ts,omitempty"`
	Edits    []Edit `json:"edits,omitempty"`
}

// Edit is one entry of the append-only edit history: the content that was
// replaced and when the replacement happened.
type Edit struct {
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// Reaction is a transient view materialized from a message's reaction map;
// it is never stored on its own.
type Reaction struct {
	MessageID string   `json:"message_id"`
	Token     string   `json:"token"`
	Users     []string `json:"users"`
}

// WordIndexEntry is the payload stored under a word:<token> key. Entries
// are derived from message content and rebuildable from it.
type WordIndexEntry struct {
	Token     string `json:"token"`
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	TS        int64  `json:"ts"`
}
