package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/wire"
)

// Change describes the effect of one directory update
type Change struct {
	Record        types.AgentRecord
	PreviousState uint16
	Created       bool
}

// StateChanged reports whether the update created the agent or moved it to
// a different state
func (c Change) StateChanged() bool {
	return c.Created || c.PreviousState != c.Record.AgentState
}

// Directory holds the last known state of every agent seen on the gateway.
// Records are created on first sight and never removed.
type Directory struct {
	agents map[string]*types.AgentRecord // agentID -> last known state
	mu     sync.RWMutex
	now    func() time.Time
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		agents: make(map[string]*types.AgentRecord),
		now:    time.Now,
	}
}

// entry returns the record for agentID, creating it when unseen. Callers
// hold the write lock.
func (d *Directory) entry(agentID string) (*types.AgentRecord, bool) {
	if rec, ok := d.agents[agentID]; ok {
		return rec, false
	}
	rec := &types.AgentRecord{
		AgentID:        agentID,
		StateStartedAt: d.now().Unix(),
	}
	d.agents[agentID] = rec
	return rec, true
}

// UpdateFromAgentStateEvent merges an agent state event. The state start
// time is derived from the event's state duration.
func (d *Directory) UpdateFromAgentStateEvent(ev *wire.AgentStateEvent) Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, created := d.entry(ev.AgentID)
	prev := rec.AgentState

	rec.ICMAgentID = ev.ICMAgentID
	rec.AgentState = ev.AgentState
	rec.StateStartedAt = d.now().Unix() - int64(ev.StateDuration)
	rec.ReasonCode = ev.EventReasonCode
	rec.SkillGroupID = ev.SkillGroupID
	rec.Direction = ev.Direction
	if ev.AgentExtension != "" {
		rec.Extension = ev.AgentExtension
	}

	return Change{Record: *rec, PreviousState: prev, Created: created}
}

// UpdateFromQueryConf merges a query answer. It carries no duration, so the
// start time only moves when the state actually changed.
func (d *Directory) UpdateFromQueryConf(ev *wire.QueryAgentStateConf) Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, created := d.entry(ev.AgentID)
	prev := rec.AgentState

	if !created && prev != ev.AgentState {
		rec.StateStartedAt = d.now().Unix()
	}
	rec.ICMAgentID = ev.ICMAgentID
	rec.AgentState = ev.AgentState
	if len(ev.SkillGroups) > 0 {
		rec.SkillGroupID = ev.SkillGroups[0].ID
	}
	if ev.AgentExtension != "" {
		rec.Extension = ev.AgentExtension
	}

	return Change{Record: *rec, PreviousState: prev, Created: created}
}

// UpdateFromTeamMember merges one member entry of a team config event
func (d *Directory) UpdateFromTeamMember(m wire.TeamMember) Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, created := d.entry(m.AgentID)
	prev := rec.AgentState

	rec.AgentState = m.State
	rec.StateStartedAt = d.now().Unix() - int64(m.StateDuration)

	return Change{Record: *rec, PreviousState: prev, Created: created}
}

// Get returns a copy of one agent's record
func (d *Directory) Get(agentID string) (types.AgentRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.agents[agentID]
	if !ok {
		return types.AgentRecord{}, false
	}
	return *rec, true
}

// Snapshot returns copies of all records ordered by agent id
func (d *Directory) Snapshot() []types.AgentRecord {
	d.mu.RLock()
	records := make([]types.AgentRecord, 0, len(d.agents))
	for _, rec := range d.agents {
		records = append(records, *rec)
	}
	d.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].AgentID < records[j].AgentID
	})
	return records
}

// Count returns the number of known agents
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// CountByState returns the number of agents per state code
func (d *Directory) CountByState() map[uint16]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[uint16]int)
	for _, rec := range d.agents {
		counts[rec.AgentState]++
	}
	return counts
}
