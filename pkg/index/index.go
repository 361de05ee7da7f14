// Package index centralizes secondary-index maintenance. Every repository
// write declares the projection puts and deletes it owes as a Plan; the
// plan is applied item-by-item because the store has no cross-key
// transaction. A projection that fails to write is logged as a warning and
// counted, never rolled back: the primary record stays authoritative and a
// repair pass can rebuild projections from it.
package index

import (
	"chatdb/pkg/logger"
	"chatdb/pkg/store"
	"chatdb/pkg/telemetry"
)

type Put struct {
	Key   string
	Value []byte
}

// Plan is the set of projection writes owed by one logical operation on
// the named entity.
type Plan struct {
	Entity  string
	Puts    []Put
	Deletes []string
}

func NewPlan(entity string) *Plan { return &Plan{Entity: entity} }

func (p *Plan) Put(key string, val []byte) *Plan {
	p.Puts = append(p.Puts, Put{Key: key, Value: val})
	return p
}

func (p *Plan) Delete(key string) *Plan {
	p.Deletes = append(p.Deletes, key)
	return p
}

// Apply writes every projection in the plan and returns how many failed.
// Failures do not stop the remaining items; each one is logged with its
// key so operators can reconcile.
func Apply(st *store.Store, p *Plan) int {
	failed := 0
	for _, put := range p.Puts {
		if err := st.Put(put.Key, put.Value); err != nil {
			logger.Warn("index_projection_write_failed", "entity", p.Entity, "key", put.Key, "error", err)
			failed++
		}
	}
	for _, key := range p.Deletes {
		if err := st.Delete(key); err != nil {
			logger.Warn("index_projection_delete_failed", "entity", p.Entity, "key", key, "error", err)
			failed++
		}
	}
	if failed > 0 {
		telemetry.IncPartialWrite(p.Entity)
	}
	return failed
}
