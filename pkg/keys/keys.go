// Package keys is the codec for the flat keyspace. Every entity type and
// every index projection gets its own prefix, so primary lookups are exact
// keys and secondary access patterns are prefix range scans.
//
// Key layout:
//
//	user:<id>                                  user record
//	useremail:<email>                          email -> user id
//	username:<name>                            display name -> user id
//	channel:<id>                               channel record
//	channelname:<kind>:<name>                  kind+name -> channel id
//	member:<channelID>:<userID>                membership record
//	memberof:<userID>:<channelID>              reverse membership edge
//	msg:<id>                                   message record
//	chanmsg:<channelID>:<padded ts>:<msgID>    channel listing projection
//	threadmsg:<parentID>:<padded ts>:<msgID>   thread reply projection
//	word:<token>:<padded ts>:<msgID>           inverted token index
//	workspace:<id>                             workspace record
//	workspacename:<name>                       workspace name -> id
//	wschan:<workspaceID>:<channelID>           workspace channel edge
//
// Timestamps are zero-padded to 20 digits so the byte order of keys equals
// chronological order, which is what every listing relies on.
package keys

import (
	"fmt"
	"sort"
	"strings"

	"chatdb/pkg/errs"
)

const tsWidth = 20

// PadTS renders a UTC-nanosecond timestamp as a fixed-width sortable string.
func PadTS(ts int64) string {
	if ts < 0 {
		ts = 0
	}
	return fmt.Sprintf("%0*d", tsWidth, ts)
}

// ValidID rejects ids that would corrupt the keyspace: empty strings and
// anything containing the separator or whitespace.
func ValidID(id string) error {
	if id == "" {
		return errs.Invalid("id", "empty")
	}
	if strings.ContainsAny(id, ": \t\n") {
		return errs.Invalid("id", "contains reserved characters")
	}
	return nil
}

func User(id string) string { return "user:" + id }
func UserEmail(email string) string {
	return "useremail:" + strings.ToLower(email)
}
func UserName(name string) string { return "username:" + name }

func Channel(id string) string { return "channel:" + id }
func ChannelName(kind, name string) string {
	return "channelname:" + kind + ":" + name
}

func Member(channelID, userID string) string {
	return "member:" + channelID + ":" + userID
}
func MemberPrefix(channelID string) string {
	return "member:" + channelID + ":"
}
func MemberOf(userID, channelID string) string {
	return "memberof:" + userID + ":" + channelID
}
func MemberOfPrefix(userID string) string {
	return "memberof:" + userID + ":"
}

func Message(id string) string { return "msg:" + id }

func ChannelMessage(channelID string, ts int64, msgID string) string {
	return "chanmsg:" + channelID + ":" + PadTS(ts) + ":" + msgID
}
func ChannelMessagePrefix(channelID string) string {
	return "chanmsg:" + channelID + ":"
}

// ChannelMessageAfter is the exclusive lower bound for messages strictly
// newer than ts; the trailing separator sorts after every key at ts itself
// because msg ids never start below ':'.
func ChannelMessageAfter(channelID string, ts int64) string {
	return "chanmsg:" + channelID + ":" + PadTS(ts) + ":" + "\xff"
}

func ThreadMessage(parentID string, ts int64, msgID string) string {
	return "threadmsg:" + parentID + ":" + PadTS(ts) + ":" + msgID
}
func ThreadMessagePrefix(parentID string) string {
	return "threadmsg:" + parentID + ":"
}

func Word(token string, ts int64, msgID string) string {
	return "word:" + token + ":" + PadTS(ts) + ":" + msgID
}
func WordPrefix(token string) string { return "word:" + token + ":" }

func Workspace(id string) string       { return "workspace:" + id }
func WorkspacePrefix() string          { return "workspace:" }
func WorkspaceName(name string) string { return "workspacename:" + name }

// WorkspaceChannel is the projection that discovers a workspace's channels;
// the workspace record itself holds no channel list.
func WorkspaceChannel(workspaceID, channelID string) string {
	return "wschan:" + workspaceID + ":" + channelID
}
func WorkspaceChannelPrefix(workspaceID string) string {
	return "wschan:" + workspaceID + ":"
}

// DMName derives the canonical direct-message channel name for a pair of
// users. The pair is sorted, so DMName(a, b) == DMName(b, a).
func DMName(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return "dm:" + pair[0] + ":" + pair[1]
}

// TailID returns the trailing id segment of a projection key, which is how
// scans recover the target entity id without parsing the whole key.
func TailID(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 || i+1 >= len(key) {
		return ""
	}
	return key[i+1:]
}
