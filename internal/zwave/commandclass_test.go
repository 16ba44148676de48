package zwave

import "testing"

func TestCommandClassFromByte(t *testing.T) {
	tests := []struct {
		name string
		b    byte
		want CommandClass
	}{
		{"basic", 0x20, ClassBasic},
		{"switch binary", 0x25, ClassSwitchBinary},
		{"switch multilevel", 0x26, ClassSwitchMultilevel},
		{"meter", 0x32, ClassMeter},
		{"battery", 0x80, ClassBattery},
		{"powerlevel", 0x73, ClassPowerLevel},
		{"mark", 0xEF, ClassMark},
		{"non interoperable", 0xF0, ClassNonInteroperable},
		{"no operation", 0x00, ClassNoOperation},
		{"reserved ids", 0x1A, ClassReservedIDs},
		// Gaps in the table fall back to NoOperation.
		{"unknown 0x1B", 0x1B, ClassNoOperation},
		{"unknown 0x1F", 0x1F, ClassNoOperation},
		{"unknown 0xFF", 0xFF, ClassNoOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandClassFromByte(tt.b); got != tt.want {
				t.Errorf("CommandClassFromByte(0x%02X) = %v, want %v", tt.b, got, tt.want)
			}
		})
	}
}

func TestCommandClassRoundTrip(t *testing.T) {
	known := KnownCommandClasses()
	if len(known) != 113 {
		t.Fatalf("KnownCommandClasses() returned %d classes, want 113", len(known))
	}

	for _, c := range known {
		if got := CommandClassFromByte(c.Byte()); got != c {
			t.Errorf("CommandClassFromByte(%v.Byte()) = %v", c, got)
		}
	}
}

func TestKnownCommandClassesSorted(t *testing.T) {
	known := KnownCommandClasses()
	for i := 1; i < len(known); i++ {
		if known[i-1] >= known[i] {
			t.Fatalf("classes not strictly ascending at %d: %v >= %v", i, known[i-1], known[i])
		}
	}
}

func TestCommandClassIsKnown(t *testing.T) {
	known := make(map[byte]bool)
	for _, c := range KnownCommandClasses() {
		known[c.Byte()] = true
	}

	for b := 0; b <= 0xFF; b++ {
		c := CommandClass(b)
		if c.IsKnown() != known[byte(b)] {
			t.Errorf("CommandClass(0x%02X).IsKnown() = %v", b, c.IsKnown())
		}
		// Total mapping: unknown bytes collapse, known ones are identity.
		got := CommandClassFromByte(byte(b))
		if known[byte(b)] && got != c {
			t.Errorf("CommandClassFromByte(0x%02X) = %v, want identity", b, got)
		}
		if !known[byte(b)] && got != ClassNoOperation {
			t.Errorf("CommandClassFromByte(0x%02X) = %v, want NO_OPERATION", b, got)
		}
	}
}

func TestCommandClassString(t *testing.T) {
	tests := []struct {
		c    CommandClass
		want string
	}{
		{ClassBasic, "BASIC"},
		{ClassSwitchBinary, "SWITCH_BINARY"},
		{ClassSwitchMultilevel, "SWITCH_MULTILEVEL"},
		{ClassMeter, "METER"},
		{ClassNoOperation, "NO_OPERATION"},
		{ClassMark, "MARK"},
		// 0x4C keeps the prefix it carries in the protocol table.
		{ClassDoorLockLogging, "COMMAND_CLASS_DOOR_LOCK_LOGGING"},
		{CommandClass(0xFF), "UNKNOWN(0xFF)"},
	}

	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("CommandClass(0x%02X).String() = %q, want %q", byte(tt.c), got, tt.want)
		}
	}
}
