// Package search queries the inverted token index written by message
// creation. The index knows nothing about callers, so access control is a
// post-filter: candidates in channels the requester cannot see are dropped
// after the scan, and the survivors are capped at a fixed ceiling.
package search

import (
	"context"
	"encoding/json"
	"strings"

	"chatdb/pkg/channels"
	"chatdb/pkg/errs"
	"chatdb/pkg/keys"
	"chatdb/pkg/logger"
	"chatdb/pkg/messages"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
)

type Index struct {
	st       *store.Store
	messages *messages.Repo
	channels *channels.Repo

	resultCap     int
	candidateScan int
}

func New(st *store.Store, mr *messages.Repo, cr *channels.Repo, resultCap, candidateScan int) *Index {
	if resultCap <= 0 {
		resultCap = 50
	}
	if candidateScan <= 0 {
		candidateScan = 500
	}
	return &Index{st: st, messages: mr, channels: cr, resultCap: resultCap, candidateScan: candidateScan}
}

// ByToken returns messages containing token that the requester is allowed
// to see, in chronological ascending order, capped at the result ceiling.
// The token is lowercased to match how content was indexed.
func (ix *Index) ByToken(ctx context.Context, requesterID, token string) ([]models.Message, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil, errs.Invalid("token", "empty")
	}
	if strings.ContainsAny(token, " \t\n") {
		return nil, errs.Invalid("token", "must be a single token")
	}

	kvs, err := ix.st.QueryPrefix(keys.WordPrefix(token), store.QueryOptions{Limit: ix.candidateScan})
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	var ids []string
	for _, kv := range kvs {
		var entry models.WordIndexEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			logger.Warn("word_entry_corrupt", "key", kv.Key, "error", err)
			continue
		}
		// "deploy" and "deploy:prod" share a scan prefix in the key space;
		// only the payload says which token the entry belongs to
		if entry.Token != token {
			continue
		}
		ok, seen := allowed[entry.ChannelID]
		if !seen {
			ok, err = ix.channels.IsMember(ctx, entry.ChannelID, requesterID)
			if err != nil {
				return nil, err
			}
			allowed[entry.ChannelID] = ok
		}
		if !ok {
			continue
		}
		ids = append(ids, entry.MessageID)
		if len(ids) >= ix.resultCap {
			break
		}
	}
	return ix.messages.BatchGet(ctx, ids)
}
