package wire

// SystemEvent reports gateway or peripheral status changes.
type SystemEvent struct {
	PGStatus                 uint32
	ICMCentralControllerTime uint32
	SystemEventID            uint32
	Arg1                     uint32
	Arg2                     uint32
	Arg3                     uint32
	EventDeviceType          uint16

	Text          string
	EventDeviceID string
}

func (m *SystemEvent) Type() MessageType { return TypeSystemEvent }

func (m *SystemEvent) encode(w *writer) {
	w.u32(m.PGStatus)
	w.u32(m.ICMCentralControllerTime)
	w.u32(m.SystemEventID)
	w.u32(m.Arg1)
	w.u32(m.Arg2)
	w.u32(m.Arg3)
	w.u16(m.EventDeviceType)

	w.optStr(TagText, m.Text)
	w.optStr(TagEventDeviceID, m.EventDeviceID)
}

func (m *SystemEvent) decode(r *reader) error {
	m.PGStatus = r.u32()
	m.ICMCentralControllerTime = r.u32()
	m.SystemEventID = r.u32()
	m.Arg1 = r.u32()
	m.Arg2 = r.u32()
	m.Arg3 = r.u32()
	m.EventDeviceType = r.u16()

	return r.floats(func(tag Tag, f *reader) error {
		switch tag {
		case TagText:
			m.Text = f.str()
		case TagEventDeviceID:
			m.EventDeviceID = f.str()
		}
		return nil
	})
}
