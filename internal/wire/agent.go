package wire

// SkillGroup is one repeated skill group entry. SKILL_GROUP_NUMBER starts a
// new entry; the ID, priority and state tags that follow belong to it.
type SkillGroup struct {
	Number   int32
	ID       uint32
	Priority uint16
	State    uint16
}

func encodeSkillGroups(w *writer, groups []SkillGroup) {
	for _, g := range groups {
		w.fltI32(TagSkillGroupNumber, g.Number)
		w.fltU32(TagSkillGroupID, g.ID)
		w.fltU16(TagSkillGroupPriority, g.Priority)
		w.fltU16(TagSkillGroupState, g.State)
	}
}

// decodeSkillGroup handles the skill group tags and reports whether tag
// was one of them.
func decodeSkillGroup(groups *[]SkillGroup, tag Tag, f *reader) (bool, error) {
	if tag == TagSkillGroupNumber {
		*groups = append(*groups, SkillGroup{Number: f.i32()})
		return true, nil
	}
	if tag != TagSkillGroupID && tag != TagSkillGroupPriority && tag != TagSkillGroupState {
		return false, nil
	}
	if len(*groups) == 0 {
		return true, ErrOrphanField
	}
	last := &(*groups)[len(*groups)-1]
	switch tag {
	case TagSkillGroupID:
		last.ID = f.u32()
	case TagSkillGroupPriority:
		last.Priority = f.u16()
	case TagSkillGroupState:
		last.State = f.u16()
	}
	return true, nil
}

// AgentStateEvent reports an agent state transition.
type AgentStateEvent struct {
	MonitorID               uint32
	PeripheralID            uint32
	SessionID               uint32
	PeripheralType          uint16
	SkillGroupState         uint16
	StateDuration           uint32
	SkillGroupNumber        uint32
	SkillGroupID            uint32
	SkillGroupPriority      uint16
	AgentState              uint16
	EventReasonCode         uint16
	MRDID                   int32
	NumTasks                uint32
	AgentMode               uint16
	MaxTaskLimit            uint32
	ICMAgentID              int32
	AgentAvailabilityStatus uint32
	NumFltSkillGroups       uint16
	DepartmentID            int32

	CTIClientSignature string
	AgentID            string
	AgentExtension     string
	ActiveTerminal     string
	AgentInstrument    string
	Duration           uint32
	NextAgentState     uint16
	Direction          uint32
	MaxBeyondTaskLimit uint32
	SkillGroups        []SkillGroup
}

func (m *AgentStateEvent) Type() MessageType { return TypeAgentStateEvent }

func (m *AgentStateEvent) encode(w *writer) {
	w.u32(m.MonitorID)
	w.u32(m.PeripheralID)
	w.u32(m.SessionID)
	w.u16(m.PeripheralType)
	w.u16(m.SkillGroupState)
	w.u32(m.StateDuration)
	w.u32(m.SkillGroupNumber)
	w.u32(m.SkillGroupID)
	w.u16(m.SkillGroupPriority)
	w.u16(m.AgentState)
	w.u16(m.EventReasonCode)
	w.i32(m.MRDID)
	w.u32(m.NumTasks)
	w.u16(m.AgentMode)
	w.u32(m.MaxTaskLimit)
	w.i32(m.ICMAgentID)
	w.u32(m.AgentAvailabilityStatus)
	w.u16(m.NumFltSkillGroups)
	w.i32(m.DepartmentID)

	w.optStr(TagCTIClientSignature, m.CTIClientSignature)
	w.optStr(TagAgentID, m.AgentID)
	w.optStr(TagAgentExtension, m.AgentExtension)
	w.optStr(TagActiveTerminal, m.ActiveTerminal)
	w.optStr(TagAgentInstrument, m.AgentInstrument)
	w.optU32(TagDuration, m.Duration)
	w.optU16(TagNextAgentState, m.NextAgentState)
	w.optU32(TagDirection, m.Direction)
	w.optU32(TagMaxBeyondTaskLimit, m.MaxBeyondTaskLimit)
	encodeSkillGroups(w, m.SkillGroups)
}

func (m *AgentStateEvent) decode(r *reader) error {
	m.MonitorID = r.u32()
	m.PeripheralID = r.u32()
	m.SessionID = r.u32()
	m.PeripheralType = r.u16()
	m.SkillGroupState = r.u16()
	m.StateDuration = r.u32()
	m.SkillGroupNumber = r.u32()
	m.SkillGroupID = r.u32()
	m.SkillGroupPriority = r.u16()
	m.AgentState = r.u16()
	m.EventReasonCode = r.u16()
	m.MRDID = r.i32()
	m.NumTasks = r.u32()
	m.AgentMode = r.u16()
	m.MaxTaskLimit = r.u32()
	m.ICMAgentID = r.i32()
	m.AgentAvailabilityStatus = r.u32()
	m.NumFltSkillGroups = r.u16()
	m.DepartmentID = r.i32()

	return r.floats(func(tag Tag, f *reader) error {
		if ok, err := decodeSkillGroup(&m.SkillGroups, tag, f); ok {
			return err
		}
		switch tag {
		case TagCTIClientSignature:
			m.CTIClientSignature = f.str()
		case TagAgentID:
			m.AgentID = f.str()
		case TagAgentExtension:
			m.AgentExtension = f.str()
		case TagActiveTerminal:
			m.ActiveTerminal = f.str()
		case TagAgentInstrument:
			m.AgentInstrument = f.str()
		case TagDuration:
			m.Duration = f.u32()
		case TagNextAgentState:
			m.NextAgentState = f.u16()
		case TagDirection:
			m.Direction = f.u32()
		case TagMaxBeyondTaskLimit:
			m.MaxBeyondTaskLimit = f.u32()
		}
		return nil
	})
}

// QueryAgentStateReq asks the gateway for the current state of one agent.
type QueryAgentStateReq struct {
	InvokeID     uint32
	PeripheralID uint32
	MRDID        int32
	ICMAgentID   int32

	AgentExtension  string
	AgentID         string
	AgentInstrument string
}

func (m *QueryAgentStateReq) Type() MessageType { return TypeQueryAgentStateReq }

func (m *QueryAgentStateReq) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u32(m.PeripheralID)
	w.i32(m.MRDID)
	w.i32(m.ICMAgentID)

	w.optStr(TagAgentExtension, m.AgentExtension)
	w.optStr(TagAgentID, m.AgentID)
	w.optStr(TagAgentInstrument, m.AgentInstrument)
}

func (m *QueryAgentStateReq) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.PeripheralID = r.u32()
	m.MRDID = r.i32()
	m.ICMAgentID = r.i32()

	return r.floats(func(tag Tag, f *reader) error {
		switch tag {
		case TagAgentExtension:
			m.AgentExtension = f.str()
		case TagAgentID:
			m.AgentID = f.str()
		case TagAgentInstrument:
			m.AgentInstrument = f.str()
		}
		return nil
	})
}

// QueryAgentStateConf answers a QueryAgentStateReq.
type QueryAgentStateConf struct {
	InvokeID                uint32
	AgentState              uint16
	NumSkillGroups          uint16
	MRDID                   int32
	AgentAvailabilityStatus uint32
	NumTasks                uint32
	AgentMode               uint16
	MaxTaskLimit            uint32
	ICMAgentID              int32
	DepartmentID            int32

	AgentID            string
	AgentExtension     string
	AgentInstrument    string
	InternalAgentState uint16
	MaxBeyondTaskLimit uint32
	SkillGroups        []SkillGroup
}

func (m *QueryAgentStateConf) Type() MessageType { return TypeQueryAgentStateConf }

func (m *QueryAgentStateConf) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u16(m.AgentState)
	w.u16(m.NumSkillGroups)
	w.i32(m.MRDID)
	w.u32(m.AgentAvailabilityStatus)
	w.u32(m.NumTasks)
	w.u16(m.AgentMode)
	w.u32(m.MaxTaskLimit)
	w.i32(m.ICMAgentID)
	w.i32(m.DepartmentID)

	w.optStr(TagAgentID, m.AgentID)
	w.optStr(TagAgentExtension, m.AgentExtension)
	w.optStr(TagAgentInstrument, m.AgentInstrument)
	w.optU16(TagInternalAgentState, m.InternalAgentState)
	w.optU32(TagMaxBeyondTaskLimit, m.MaxBeyondTaskLimit)
	encodeSkillGroups(w, m.SkillGroups)
}

func (m *QueryAgentStateConf) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.AgentState = r.u16()
	m.NumSkillGroups = r.u16()
	m.MRDID = r.i32()
	m.AgentAvailabilityStatus = r.u32()
	m.NumTasks = r.u32()
	m.AgentMode = r.u16()
	m.MaxTaskLimit = r.u32()
	m.ICMAgentID = r.i32()
	m.DepartmentID = r.i32()

	return r.floats(func(tag Tag, f *reader) error {
		if ok, err := decodeSkillGroup(&m.SkillGroups, tag, f); ok {
			return err
		}
		switch tag {
		case TagAgentID:
			m.AgentID = f.str()
		case TagAgentExtension:
			m.AgentExtension = f.str()
		case TagAgentInstrument:
			m.AgentInstrument = f.str()
		case TagInternalAgentState:
			m.InternalAgentState = f.u16()
		case TagMaxBeyondTaskLimit:
			m.MaxBeyondTaskLimit = f.u32()
		}
		return nil
	})
}

// TeamMember is one agent listed in an AgentTeamConfigEvent.
type TeamMember struct {
	AgentID       string
	Flags         uint16
	State         uint16
	StateDuration uint16
}

// AgentTeamConfigEvent lists the members of an agent team.
type AgentTeamConfigEvent struct {
	PeripheralID    uint32
	TeamID          uint32
	NumberOfAgents  uint16
	ConfigOperation uint16
	DepartmentID    int32

	TeamName string
	Members  []TeamMember
}

func (m *AgentTeamConfigEvent) Type() MessageType { return TypeAgentTeamConfigEvent }

func (m *AgentTeamConfigEvent) encode(w *writer) {
	w.u32(m.PeripheralID)
	w.u32(m.TeamID)
	w.u16(m.NumberOfAgents)
	w.u16(m.ConfigOperation)
	w.i32(m.DepartmentID)

	w.optStr(TagAgentTeamName, m.TeamName)
	for _, a := range m.Members {
		w.str(TagATCAgentID, a.AgentID)
		w.fltU16(TagAgentFlags, a.Flags)
		w.fltU16(TagATCAgentState, a.State)
		w.fltU16(TagATCAgentStateDuration, a.StateDuration)
	}
}

func (m *AgentTeamConfigEvent) decode(r *reader) error {
	m.PeripheralID = r.u32()
	m.TeamID = r.u32()
	m.NumberOfAgents = r.u16()
	m.ConfigOperation = r.u16()
	m.DepartmentID = r.i32()

	return r.floats(func(tag Tag, f *reader) error {
		switch tag {
		case TagAgentTeamName:
			m.TeamName = f.str()
			return nil
		case TagATCAgentID:
			m.Members = append(m.Members, TeamMember{AgentID: f.str()})
			return nil
		case TagAgentFlags, TagATCAgentState, TagATCAgentStateDuration:
		default:
			return nil
		}

		if len(m.Members) == 0 {
			return ErrOrphanField
		}
		last := &m.Members[len(m.Members)-1]
		switch tag {
		case TagAgentFlags:
			last.Flags = f.u16()
		case TagATCAgentState:
			last.State = f.u16()
		case TagATCAgentStateDuration:
			last.StateDuration = f.u16()
		}
		return nil
	})
}
