// Package sim is a fake CTI gateway. It speaks the same wire protocol as a
// real CTI Server for a configured roster of agents and changes their states
// on a timer, so the bridge can be exercised without a contact center.
package sim

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

// Agent is one simulated agent.
type Agent struct {
	ID           string `yaml:"id" json:"agentId"`
	ICMAgentID   int32  `yaml:"icmAgentId" json:"icmAgentId"`
	Extension    string `yaml:"extension" json:"extension"`
	SkillGroupID uint32 `yaml:"skillGroupId" json:"skillGroupId"`
	State        uint16 `yaml:"state" json:"agentState"`
}

// Roster is the team the simulator reports after a session opens.
type Roster struct {
	PeripheralID uint32  `yaml:"peripheralId"`
	TeamID       uint32  `yaml:"teamId"`
	TeamName     string  `yaml:"teamName"`
	Agents       []Agent `yaml:"agents"`
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	if len(r.Agents) == 0 {
		return nil, fmt.Errorf("roster %s has no agents", path)
	}

	seen := make(map[string]bool, len(r.Agents))
	for _, a := range r.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("roster %s: agent without id", path)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("roster %s: duplicate agent %s", path, a.ID)
		}
		seen[a.ID] = true
	}
	return &r, nil
}

// Distribution of initial states: 50% available, 25% not ready, 15% talking,
// 10% work ready.
var (
	initialStates  = []uint16{types.AgentAvailable, types.AgentNotReady, types.AgentTalking, types.AgentWorkReady}
	initialWeights = []int{50, 25, 15, 10}
)

// GenerateRoster creates count agents with ids starting at 1001.
func GenerateRoster(count int, peripheralID uint32, seed int64) *Roster {
	rng := rand.New(rand.NewSource(seed))

	r := &Roster{
		PeripheralID: peripheralID,
		TeamID:       1,
		TeamName:     "simulated",
		Agents:       make([]Agent, count),
	}
	for i := 0; i < count; i++ {
		r.Agents[i] = Agent{
			ID:           fmt.Sprintf("%d", 1001+i),
			ICMAgentID:   int32(5001 + i),
			Extension:    fmt.Sprintf("%d", 2001+i),
			SkillGroupID: uint32(100 + i%4),
			State:        weightedChoice(rng, initialStates, initialWeights),
		}
	}
	return r
}

// weightedChoice selects an item based on weights
func weightedChoice(rng *rand.Rand, items []uint16, weights []int) uint16 {
	total := 0
	for _, w := range weights {
		total += w
	}

	choice := rng.Intn(total)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if choice < cumulative {
			return items[i]
		}
	}
	return items[0]
}
