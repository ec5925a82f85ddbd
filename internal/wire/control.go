package wire

// HeartbeatReq keeps the session alive.
type HeartbeatReq struct {
	InvokeID uint32
}

func (m *HeartbeatReq) Type() MessageType { return TypeHeartbeatReq }
func (m *HeartbeatReq) encode(w *writer) { w.u32(m.InvokeID) }
func (m *HeartbeatReq) decode(r *reader) error {
	m.InvokeID = r.u32()
	return r.err
}

// HeartbeatConf acknowledges a HeartbeatReq with the same invoke id.
type HeartbeatConf struct {
	InvokeID uint32
}

func (m *HeartbeatConf) Type() MessageType { return TypeHeartbeatConf }
func (m *HeartbeatConf) encode(w *writer) { w.u32(m.InvokeID) }
func (m *HeartbeatConf) decode(r *reader) error {
	m.InvokeID = r.u32()
	return r.err
}

// CloseReq ends the session.
type CloseReq struct {
	InvokeID uint32
	Status   uint32
}

func (m *CloseReq) Type() MessageType { return TypeCloseReq }

func (m *CloseReq) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u32(m.Status)
}

func (m *CloseReq) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.Status = r.u32()
	return r.err
}

// CloseConf acknowledges a CloseReq.
type CloseConf struct {
	InvokeID uint32
}

func (m *CloseConf) Type() MessageType { return TypeCloseConf }
func (m *CloseConf) encode(w *writer) { w.u32(m.InvokeID) }
func (m *CloseConf) decode(r *reader) error {
	m.InvokeID = r.u32()
	return r.err
}

// FailureConf rejects the request with the given invoke id.
type FailureConf struct {
	InvokeID uint32
	Status   uint32
}

func (m *FailureConf) Type() MessageType { return TypeFailureConf }

func (m *FailureConf) encode(w *writer) {
	w.u32(m.InvokeID)
	w.u32(m.Status)
}

func (m *FailureConf) decode(r *reader) error {
	m.InvokeID = r.u32()
	m.Status = r.u32()
	return r.err
}

// FailureEvent reports an unsolicited gateway-side failure.
type FailureEvent struct {
	Status uint32
}

func (m *FailureEvent) Type() MessageType { return TypeFailureEvent }
func (m *FailureEvent) encode(w *writer) { w.u32(m.Status) }
func (m *FailureEvent) decode(r *reader) error {
	m.Status = r.u32()
	return r.err
}
