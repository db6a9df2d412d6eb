package bgapi

import (
	"encoding/binary"
	"fmt"
)

// Method ids of the commands used to find and drive a robot.
const (
	idConnectionDisconnect byte = 0
	idATTReadByGroupType   byte = 1
	idATTFindInformation   byte = 3
	idATTAttributeWrite    byte = 5
	idGAPDiscover          byte = 2
	idGAPConnectDirect     byte = 3
	idGAPEndProcedure      byte = 4
)

// Discover modes.
const (
	DiscoverLimited     byte = 0
	DiscoverGeneric     byte = 1
	DiscoverObservation byte = 2
)

// CommandName names a command by class and id, for logs and errors.
func CommandName(class, id byte) string {
	switch {
	case class == ClassGAP && id == idGAPEndProcedure:
		return "gap_end_procedure"
	case class == ClassGAP && id == idGAPDiscover:
		return "gap_discover"
	case class == ClassGAP && id == idGAPConnectDirect:
		return "gap_connect_direct"
	case class == ClassConnection && id == idConnectionDisconnect:
		return "connection_disconnect"
	case class == ClassATTClient && id == idATTReadByGroupType:
		return "attclient_read_by_group_type"
	case class == ClassATTClient && id == idATTFindInformation:
		return "attclient_find_information"
	case class == ClassATTClient && id == idATTAttributeWrite:
		return "attclient_attribute_write"
	default:
		return fmt.Sprintf("command %d/%d", class, id)
	}
}

func command(class, id byte, payload []byte) Packet {
	return Packet{Class: class, ID: id, Payload: payload}
}

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// EndProcedure stops any ongoing GAP procedure, such as a scan.
func EndProcedure() Packet {
	return command(ClassGAP, idGAPEndProcedure, nil)
}

// Discover starts scanning for advertising peripherals.
func Discover(mode byte) Packet {
	return command(ClassGAP, idGAPDiscover, []byte{mode})
}

// ConnectDirect opens a connection to addr. Intervals are in 1.25 ms
// units and the supervision timeout in 10 ms units.
func ConnectDirect(addr [6]byte, addrType byte, minInterval, maxInterval, timeout, latency uint16) Packet {
	b := make([]byte, 0, 15)
	b = append(b, addr[:]...)
	b = append(b, addrType)
	b = appendU16(b, minInterval)
	b = appendU16(b, maxInterval)
	b = appendU16(b, timeout)
	b = appendU16(b, latency)
	return command(ClassGAP, idGAPConnectDirect, b)
}

// Disconnect closes connection conn.
func Disconnect(conn byte) Packet {
	return command(ClassConnection, idConnectionDisconnect, []byte{conn})
}

// ReadByGroupType lists the attribute groups of type uuid between start
// and end. With the primary-service type it enumerates services.
func ReadByGroupType(conn byte, start, end uint16, uuid []byte) Packet {
	b := make([]byte, 0, 6+len(uuid))
	b = append(b, conn)
	b = appendU16(b, start)
	b = appendU16(b, end)
	b = append(b, byte(len(uuid)))
	b = append(b, uuid...)
	return command(ClassATTClient, idATTReadByGroupType, b)
}

// FindInformation lists the attribute handles and types between start
// and end.
func FindInformation(conn byte, start, end uint16) Packet {
	b := make([]byte, 0, 5)
	b = append(b, conn)
	b = appendU16(b, start)
	b = appendU16(b, end)
	return command(ClassATTClient, idATTFindInformation, b)
}

// AttributeWrite writes data to handle with an acknowledged write.
func AttributeWrite(conn byte, handle uint16, data []byte) Packet {
	b := make([]byte, 0, 4+len(data))
	b = append(b, conn)
	b = appendU16(b, handle)
	b = append(b, byte(len(data)))
	b = append(b, data...)
	return command(ClassATTClient, idATTAttributeWrite, b)
}

// WriteError returns the error for an attribute write whose procedure
// completed with a nonzero result.
func WriteError(result uint16) error {
	return &ResultError{Class: ClassATTClient, ID: idATTAttributeWrite, Result: result}
}
