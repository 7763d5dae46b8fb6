package ingest

import "testing"

func TestDecodeDoorByte_OpenHealthy(t *testing.T) {
	// Observed from a healthy sensor with the door open
	state := DecodeDoorByte(0x02)

	if !state.IsOpen {
		t.Error("expected door open")
	}
	if state.IsTampered || state.IsLowBattery || state.IsHeartbeat {
		t.Error("expected all health bits clear")
	}
}

func TestDecodeDoorByte_ClosedDegraded(t *testing.T) {
	// Observed from a closed door reporting low battery, tamper and heartbeat
	state := DecodeDoorByte(0x0D)

	if state.IsOpen {
		t.Error("expected door closed")
	}
	if !state.IsTampered {
		t.Error("expected tamper bit set")
	}
	if !state.IsLowBattery {
		t.Error("expected low battery bit set")
	}
	if !state.IsHeartbeat {
		t.Error("expected heartbeat bit set")
	}
}

func TestDecodeDoorByte_IndividualBits(t *testing.T) {
	tests := []struct {
		name string
		data byte
		want DoorState
	}{
		{name: "all clear", data: 0x00, want: DoorState{}},
		{name: "tamper only", data: 0x01, want: DoorState{IsTampered: true}},
		{name: "open only", data: 0x02, want: DoorState{IsOpen: true}},
		{name: "low battery only", data: 0x04, want: DoorState{IsLowBattery: true}},
		{name: "heartbeat only", data: 0x08, want: DoorState{IsHeartbeat: true}},
		{name: "all set", data: 0x0F, want: DoorState{IsOpen: true, IsTampered: true, IsLowBattery: true, IsHeartbeat: true}},
		{name: "unused high bits ignored", data: 0xF2, want: DoorState{IsOpen: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeDoorByte(tt.data); got != tt.want {
				t.Errorf("DecodeDoorByte(%#02x) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}
