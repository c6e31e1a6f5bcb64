package discussion

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster is the ordered set of configured agents. It is built once and passed to the
// components that resolve agent identities; it is read-only after construction.
type Roster struct {
	agents []AgentProfile
	byID   map[string]int
}

// NewRoster validates the profiles and indexes them by ID.
func NewRoster(agents []AgentProfile) (*Roster, error) {
	r := &Roster{byID: make(map[string]int, len(agents))}
	for _, agent := range agents {
		agent.ID = strings.TrimSpace(agent.ID)
		switch {
		case agent.ID == "":
			return nil, errors.New("discussion: agent id must be provided")
		case agent.ID == UserID:
			return nil, fmt.Errorf("discussion: agent id %q is reserved", UserID)
		}
		if _, dup := r.byID[agent.ID]; dup {
			return nil, fmt.Errorf("discussion: duplicate agent id %q", agent.ID)
		}
		switch agent.Role {
		case "":
			agent.Role = RoleParticipant
		case RoleModerator, RoleParticipant:
		default:
			return nil, fmt.Errorf("discussion: agent %q has unknown role %q", agent.ID, agent.Role)
		}
		r.byID[agent.ID] = len(r.agents)
		r.agents = append(r.agents, agent)
	}
	return r, nil
}

// Agents returns a copy of the profiles in configuration order.
func (r *Roster) Agents() []AgentProfile {
	if r == nil {
		return nil
	}
	return append([]AgentProfile(nil), r.agents...)
}

// Lookup finds an agent by ID.
func (r *Roster) Lookup(id string) (AgentProfile, bool) {
	if r == nil {
		return AgentProfile{}, false
	}
	idx, ok := r.byID[id]
	if !ok {
		return AgentProfile{}, false
	}
	return r.agents[idx], true
}

// Subset returns the agents with the given IDs in roster order. Unknown IDs are reported.
func (r *Roster) Subset(ids []string) ([]AgentProfile, error) {
	if len(ids) == 0 {
		return r.Agents(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.Lookup(id); !ok {
			return nil, fmt.Errorf("discussion: unknown agent %q", id)
		}
		want[id] = true
	}
	out := make([]AgentProfile, 0, len(want))
	for _, agent := range r.agents {
		if want[agent.ID] {
			out = append(out, agent)
		}
	}
	return out, nil
}

type agentsFile struct {
	Agents []AgentProfile `yaml:"agents"`
}

// LoadRoster reads agent profiles from a YAML document of the form `agents: [...]`.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("discussion: read agents file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes agent profiles from YAML bytes.
func ParseRoster(data []byte) (*Roster, error) {
	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("discussion: decode agents: %w", err)
	}
	return NewRoster(file.Agents)
}
