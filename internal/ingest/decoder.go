package ingest

// Door-contact control byte layout:
//
//	bit 0  tamper
//	bit 1  open/closed (set = open)
//	bit 2  low battery
//	bit 3  heartbeat
const (
	doorBitTampered   = 0x01
	doorBitOpen       = 0x02
	doorBitLowBattery = 0x04
	doorBitHeartbeat  = 0x08
)

// DoorState is the decoded door-contact control byte. Only the open bit
// reaches the state machine; the rest feed the vitals hash.
type DoorState struct {
	IsOpen       bool
	IsTampered   bool
	IsLowBattery bool
	IsHeartbeat  bool
}

// DecodeDoorByte decodes a door-sensor control byte
func DecodeDoorByte(b byte) DoorState {
	return DoorState{
		IsOpen:       b&doorBitOpen != 0,
		IsTampered:   b&doorBitTampered != 0,
		IsLowBattery: b&doorBitLowBattery != 0,
		IsHeartbeat:  b&doorBitHeartbeat != 0,
	}
}
