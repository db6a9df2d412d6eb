package bgapi

import "fmt"

// Event ids.
const (
	evtGAPScanResponse         byte = 0
	evtConnectionStatus        byte = 0
	evtConnectionDisconnected  byte = 4
	evtATTProcedureCompleted   byte = 1
	evtATTGroupFound           byte = 2
	evtATTFindInformationFound byte = 4
)

// ConnectionStatus flag bits.
const (
	FlagConnected         byte = 0x01
	FlagEncrypted         byte = 0x02
	FlagCompleted         byte = 0x04
	FlagParametersChanged byte = 0x08
)

// Address types reported with advertisements.
const (
	AddressPublic byte = 0
	AddressRandom byte = 1
)

// Event is a decoded BGAPI event.
type Event interface {
	eventName() string
}

// ScanResponse reports an advertisement heard during discovery.
type ScanResponse struct {
	RSSI        int8
	PacketType  byte
	Sender      [6]byte // little-endian
	AddressType byte
	Bond        byte
	Data        []byte
}

// ConnectionStatus reports a connection opening or changing.
type ConnectionStatus struct {
	Connection  byte
	Flags       byte
	Address     [6]byte
	AddressType byte
	Interval    uint16
	Timeout     uint16
	Latency     uint16
	Bonding     byte
}

// Connected reports whether the connected flag is set.
func (e ConnectionStatus) Connected() bool {
	return e.Flags&FlagConnected != 0
}

// Disconnected reports a closed connection.
type Disconnected struct {
	Connection byte
	Reason     uint16
}

// ProcedureCompleted reports the end of an attribute client procedure:
// a service or characteristic scan, or an acknowledged write.
type ProcedureCompleted struct {
	Connection byte
	Result     uint16
	Handle     uint16
}

// GroupFound reports one attribute group found by read_by_group_type.
// UUID is little-endian, as received.
type GroupFound struct {
	Connection byte
	Start      uint16
	End        uint16
	UUID       []byte
}

// InformationFound reports one attribute found by find_information.
// UUID is little-endian, as received.
type InformationFound struct {
	Connection byte
	Handle     uint16
	UUID       []byte
}

// UnknownEvent carries an event this package does not decode.
type UnknownEvent struct {
	Packet Packet
}

func (ScanResponse) eventName() string       { return "gap_scan_response" }
func (ConnectionStatus) eventName() string   { return "connection_status" }
func (Disconnected) eventName() string       { return "connection_disconnected" }
func (ProcedureCompleted) eventName() string { return "attclient_procedure_completed" }
func (GroupFound) eventName() string         { return "attclient_group_found" }
func (InformationFound) eventName() string   { return "attclient_find_information_found" }
func (UnknownEvent) eventName() string       { return "unknown" }

// EventName returns the BGAPI name of ev.
func EventName(ev Event) string {
	return ev.eventName()
}

// Response is a decoded command response. Every command this package
// builds answers with a result code; connection-scoped commands also echo
// the connection handle.
type Response struct {
	Class      byte
	ID         byte
	Result     uint16
	Connection byte
}

// Err returns a *ResultError when the dongle rejected the command.
func (r Response) Err() error {
	if r.Result == 0 {
		return nil
	}
	return &ResultError{Class: r.Class, ID: r.ID, Result: r.Result}
}

// ResultError is a nonzero result code returned for a command.
type ResultError struct {
	Class  byte
	ID     byte
	Result uint16
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("bgapi: %s failed: result 0x%04x", CommandName(e.Class, e.ID), e.Result)
}

// DecodeResponse decodes a command response packet.
func DecodeResponse(p Packet) (Response, error) {
	if p.Event {
		return Response{}, fmt.Errorf("bgapi: %s is not a response", p)
	}
	r := &reader{b: p.Payload}
	resp := Response{Class: p.Class, ID: p.ID}
	switch {
	case p.Class == ClassGAP && p.ID == idGAPConnectDirect:
		resp.Result = r.u16()
		resp.Connection = r.u8()
	case p.Class == ClassGAP:
		resp.Result = r.u16()
	case p.Class == ClassConnection, p.Class == ClassATTClient:
		resp.Connection = r.u8()
		resp.Result = r.u16()
	default:
		// Unrecognised responses are reported as successful.
		return resp, nil
	}
	if r.err != nil {
		return Response{}, fmt.Errorf("bgapi: %s: %w", CommandName(p.Class, p.ID), r.err)
	}
	return resp, nil
}

// DecodeEvent decodes an event packet. Events outside the set used here
// decode to UnknownEvent.
func DecodeEvent(p Packet) (Event, error) {
	if !p.Event {
		return nil, fmt.Errorf("bgapi: %s is not an event", p)
	}
	r := &reader{b: p.Payload}
	var ev Event
	switch {
	case p.Class == ClassGAP && p.ID == evtGAPScanResponse:
		ev = ScanResponse{
			RSSI:        int8(r.u8()),
			PacketType:  r.u8(),
			Sender:      r.addr(),
			AddressType: r.u8(),
			Bond:        r.u8(),
			Data:        r.array(),
		}
	case p.Class == ClassConnection && p.ID == evtConnectionStatus:
		ev = ConnectionStatus{
			Connection:  r.u8(),
			Flags:       r.u8(),
			Address:     r.addr(),
			AddressType: r.u8(),
			Interval:    r.u16(),
			Timeout:     r.u16(),
			Latency:     r.u16(),
			Bonding:     r.u8(),
		}
	case p.Class == ClassConnection && p.ID == evtConnectionDisconnected:
		ev = Disconnected{Connection: r.u8(), Reason: r.u16()}
	case p.Class == ClassATTClient && p.ID == evtATTProcedureCompleted:
		ev = ProcedureCompleted{Connection: r.u8(), Result: r.u16(), Handle: r.u16()}
	case p.Class == ClassATTClient && p.ID == evtATTGroupFound:
		ev = GroupFound{Connection: r.u8(), Start: r.u16(), End: r.u16(), UUID: r.array()}
	case p.Class == ClassATTClient && p.ID == evtATTFindInformationFound:
		ev = InformationFound{Connection: r.u8(), Handle: r.u16(), UUID: r.array()}
	default:
		return UnknownEvent{Packet: p}, nil
	}
	if r.err != nil {
		return nil, fmt.Errorf("bgapi: %s: %w", p, r.err)
	}
	return ev, nil
}

// Event packet builders. The dongle never receives these; they let
// alternative radios and tests produce the same packets it would send.

// EncodeEvent returns the packet a dongle would send for ev.
func EncodeEvent(ev Event) (Packet, error) {
	switch e := ev.(type) {
	case ScanResponse:
		b := []byte{byte(e.RSSI), e.PacketType}
		b = append(b, e.Sender[:]...)
		b = append(b, e.AddressType, e.Bond, byte(len(e.Data)))
		b = append(b, e.Data...)
		return Packet{Event: true, Class: ClassGAP, ID: evtGAPScanResponse, Payload: b}, nil
	case ConnectionStatus:
		b := []byte{e.Connection, e.Flags}
		b = append(b, e.Address[:]...)
		b = append(b, e.AddressType)
		b = appendU16(b, e.Interval)
		b = appendU16(b, e.Timeout)
		b = appendU16(b, e.Latency)
		b = append(b, e.Bonding)
		return Packet{Event: true, Class: ClassConnection, ID: evtConnectionStatus, Payload: b}, nil
	case Disconnected:
		b := appendU16([]byte{e.Connection}, e.Reason)
		return Packet{Event: true, Class: ClassConnection, ID: evtConnectionDisconnected, Payload: b}, nil
	case ProcedureCompleted:
		b := appendU16([]byte{e.Connection}, e.Result)
		b = appendU16(b, e.Handle)
		return Packet{Event: true, Class: ClassATTClient, ID: evtATTProcedureCompleted, Payload: b}, nil
	case GroupFound:
		b := appendU16([]byte{e.Connection}, e.Start)
		b = appendU16(b, e.End)
		b = append(b, byte(len(e.UUID)))
		b = append(b, e.UUID...)
		return Packet{Event: true, Class: ClassATTClient, ID: evtATTGroupFound, Payload: b}, nil
	case InformationFound:
		b := appendU16([]byte{e.Connection}, e.Handle)
		b = append(b, byte(len(e.UUID)))
		b = append(b, e.UUID...)
		return Packet{Event: true, Class: ClassATTClient, ID: evtATTFindInformationFound, Payload: b}, nil
	case UnknownEvent:
		return e.Packet, nil
	default:
		return Packet{}, fmt.Errorf("bgapi: cannot encode %T", ev)
	}
}

// EncodeResponse returns the packet a dongle would send for r.
func EncodeResponse(r Response) Packet {
	var b []byte
	switch {
	case r.Class == ClassGAP && r.ID == idGAPConnectDirect:
		b = append(appendU16(nil, r.Result), r.Connection)
	case r.Class == ClassGAP:
		b = appendU16(nil, r.Result)
	default:
		b = appendU16([]byte{r.Connection}, r.Result)
	}
	return Packet{Class: r.Class, ID: r.ID, Payload: b}
}
