package wire

// OpenReq opens a session with the gateway. CLIENT_ID and CLIENT_PASSWORD
// are always present, the remaining floating fields only when set.
type OpenReq struct {
	InvokeID          uint32
	VersionNumber     uint32
	IdleTimeout       uint32
	PeripheralID      uint32
	ServicesRequested uint32
	CallMessageMask   uint32
	AgentStateMask    uint32
	ConfigMessageMask uint32
	Reserved1         uint32
	Reserved2         uint32
	Reserved3         uint32

	ClientID          string
	ClientPassword    string
	ClientSignature   string
	AgentExtension    string
	AgentID           string
	AgentInstrument   string
	ApplicationPathID uint32
	UniqueInstanceID  string
}

// AnyPeripheral requests events for every peripheral.
const AnyPeripheral uint32 = 0xFFFFFFFF

func (m *OpenReq) Type() MessageType { return TypeOpenReq }

func (m *OpenReq) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u32(m.VersionNumber)
	w.u32(m.IdleTimeout)
	w.u32(m.PeripheralID)
	w.u32(m.ServicesRequested)
	w.u32(m.CallMessageMask)
	w.u32(m.AgentStateMask)
	w.u32(m.ConfigMessageMask)
	w.u32(m.Reserved1)
	w.u32(m.Reserved2)
	w.u32(m.Reserved3)

	w.str(TagClientID, m.ClientID)
	w.str(TagClientPassword, m.ClientPassword)
	w.optStr(TagClientSignature, m.ClientSignature)
	w.optStr(TagAgentExtension, m.AgentExtension)
	w.optStr(TagAgentID, m.AgentID)
	w.optStr(TagAgentInstrument, m.AgentInstrument)
	w.optU32(TagApplicationPathID, m.ApplicationPathID)
	w.optStr(TagUniqueInstanceID, m.UniqueInstanceID)
}

func (m *OpenReq) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.VersionNumber = r.u32()
	m.IdleTimeout = r.u32()
	m.PeripheralID = r.u32()
	m.ServicesRequested = r.u32()
	m.CallMessageMask = r.u32()
	m.AgentStateMask = r.u32()
	m.ConfigMessageMask = r.u32()
	m.Reserved1 = r.u32()
	m.Reserved2 = r.u32()
	m.Reserved3 = r.u32()

	return r.floats(func(tag Tag, f *reader) error {
		switch tag {
		case TagClientID:
			m.ClientID = f.str()
		case TagClientPassword:
			m.ClientPassword = f.str()
		case TagClientSignature:
			m.ClientSignature = f.str()
		case TagAgentExtension:
			m.AgentExtension = f.str()
		case TagAgentID:
			m.AgentID = f.str()
		case TagAgentInstrument:
			m.AgentInstrument = f.str()
		case TagApplicationPathID:
			m.ApplicationPathID = f.u32()
		case TagUniqueInstanceID:
			m.UniqueInstanceID = f.str()
		}
		return nil
	})
}

// OpenConf is the gateway's answer to OpenReq.
type OpenConf struct {
	InvokeID                 uint32
	ServicesGranted          uint32
	MonitorID                uint32
	PGStatus                 uint32
	ICMCentralControllerTime uint32
	PeripheralOnline         bool
	PeripheralType           uint16
	AgentState               uint16
	DepartmentID             int32
	SessionType              uint16

	AgentExtension        string
	AgentID               string
	AgentInstrument       string
	NumPeripherals        uint16
	MultiLineAgentControl uint16
}

func (m *OpenConf) Type() MessageType { return TypeOpenConf }

func (m *OpenConf) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u32(m.ServicesGranted)
	w.u32(m.MonitorID)
	w.u32(m.PGStatus)
	w.u32(m.ICMCentralControllerTime)
	w.bool16(m.PeripheralOnline)
	w.u16(m.PeripheralType)
	w.u16(m.AgentState)
	w.i32(m.DepartmentID)
	w.u16(m.SessionType)

	w.optStr(TagAgentExtension, m.AgentExtension)
	w.optStr(TagAgentID, m.AgentID)
	w.optStr(TagAgentInstrument, m.AgentInstrument)
	w.optU16(TagNumPeripherals, m.NumPeripherals)
	w.optU16(TagMultiLineAgentControl, m.MultiLineAgentControl)
}

func (m *OpenConf) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.ServicesGranted = r.u32()
	m.MonitorID = r.u32()
	m.PGStatus = r.u32()
	m.ICMCentralControllerTime = r.u32()
	m.PeripheralOnline = r.bool16()
	m.PeripheralType = r.u16()
	m.AgentState = r.u16()
	m.DepartmentID = r.i32()
	m.SessionType = r.u16()

	return r.floats(func(tag Tag, f *reader) error {
		switch tag {
		case TagAgentExtension:
			m.AgentExtension = f.str()
		case TagAgentID:
			m.AgentID = f.str()
		case TagAgentInstrument:
			m.AgentInstrument = f.str()
		case TagNumPeripherals:
			m.NumPeripherals = f.u16()
		case TagMultiLineAgentControl:
			m.MultiLineAgentControl = f.u16()
		}
		return nil
	})
}
