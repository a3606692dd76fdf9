package nfc

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		uid  []byte
		want Technology
	}{
		{"empty identity", nil, TechnologyType2},
		{"four byte", []byte{0x04, 0x11, 0x22, 0x33}, TechnologyMifareClassic},
		{"seven byte", []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, TechnologyType2},
		{"one byte", []byte{0x01}, TechnologyType2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(NewIdentity(tt.uid)); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_OnlyLengthMatters(t *testing.T) {
	for b := 0; b < 256; b++ {
		id := NewIdentity([]byte{byte(b), byte(b), byte(b), byte(b)})
		if Classify(id) != TechnologyMifareClassic {
			t.Fatalf("Classify(%s) != MIFARE Classic", id)
		}
	}
}

func TestClassifyTarget(t *testing.T) {
	uid4 := NewIdentity([]byte{0x04, 0x11, 0x22, 0x33})
	uid7 := NewIdentity([]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})

	tests := []struct {
		name string
		id   Identity
		atqa uint16
		sak  byte
		want Technology
	}{
		{"classic 1k", uid4, 0x0004, 0x08, TechnologyMifareClassic},
		{"classic 1k 7 byte", uid7, 0x0044, 0x08, TechnologyMifareClassic},
		{"classic 4k", uid4, 0x0002, 0x18, TechnologyMifareClassic},
		{"ultralight", uid7, 0x0044, 0x00, TechnologyType2},
		{"type 4", uid7, 0x0344, 0x20, TechnologyUnknown},
		{"no identity", Identity{}, 0x0004, 0x08, TechnologyUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTarget(tt.id, tt.atqa, tt.sak); got != tt.want {
				t.Errorf("ClassifyTarget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTechnology_String(t *testing.T) {
	tests := map[Technology]string{
		TechnologyMifareClassic: TechnologyNameMifareClassic,
		TechnologyType2:         TechnologyNameType2,
		TechnologyUnknown:       TechnologyNameUnknown,
		Technology(42):          TechnologyNameUnknown,
	}
	for tech, want := range tests {
		if got := tech.String(); got != want {
			t.Errorf("Technology(%d).String() = %q, want %q", int(tech), got, want)
		}
	}
}
