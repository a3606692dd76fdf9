package nfc

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

// scriptTransport replays queued chip output and records host frames.
type scriptTransport struct {
	reads  [][]byte
	writes [][]byte
	woken  bool
	closed bool
}

func (s *scriptTransport) Wakeup() error {
	s.woken = true
	return nil
}

func (s *scriptTransport) WriteFrame(frame []byte) error {
	s.writes = append(s.writes, append([]byte(nil), frame...))
	return nil
}

func (s *scriptTransport) ReadFrame(max int, timeout time.Duration) ([]byte, error) {
	if len(s.reads) == 0 {
		return nil, ErrTimeout
	}
	f := s.reads[0]
	s.reads = s.reads[1:]
	return f, nil
}

func (s *scriptTransport) Close() error {
	s.closed = true
	return nil
}

// respond queues an ACK followed by a response to cmd.
func (s *scriptTransport) respond(cmd byte, data ...byte) {
	s.reads = append(s.reads, pn532AckFrame, chipFrame(append([]byte{cmd + 1}, data...)...))
}

// sent returns the command data of the i-th host frame.
func (s *scriptTransport) sent(t *testing.T, i int) []byte {
	t.Helper()
	if i >= len(s.writes) {
		t.Fatalf("only %d frames written, want frame %d", len(s.writes), i)
	}
	f := s.writes[i]
	// 00 00 FF LEN LCS D4 <data> DCS 00
	return f[6 : len(f)-2]
}

func TestPN532Chip_FirmwareVersion(t *testing.T) {
	tr := &scriptTransport{}
	tr.respond(cmdGetFirmwareVersion, 0x32, 0x01, 0x06, 0x07)
	chip := NewPN532Chip(tr)

	if err := chip.Begin(); err != nil || !tr.woken {
		t.Fatalf("Begin() = %v, woken = %v", err, tr.woken)
	}
	v, err := chip.FirmwareVersion()
	if err != nil {
		t.Fatalf("FirmwareVersion() failed: %v", err)
	}
	if v != 0x32010607 {
		t.Errorf("FirmwareVersion() = %08X, want 32010607", v)
	}
	if got := ParseFirmwareVersion(v).String(); got != "PN532 firmware 1.6" {
		t.Errorf("String() = %q", got)
	}
}

func TestPN532Chip_NoAnswer(t *testing.T) {
	tr := &scriptTransport{}
	chip := NewPN532Chip(tr)

	_, err := chip.FirmwareVersion()
	if GetErrorCode(err) != ErrCodeTransport || !errors.Is(err, ErrTimeout) {
		t.Errorf("FirmwareVersion() error = %v, want transport timeout", err)
	}
}

func TestPN532Chip_ResponseTimeoutAborts(t *testing.T) {
	tr := &scriptTransport{reads: [][]byte{pn532AckFrame}}
	chip := NewPN532Chip(tr)

	if _, err := chip.FirmwareVersion(); err == nil {
		t.Fatal("expected timeout")
	}
	last := tr.writes[len(tr.writes)-1]
	if !bytes.Equal(last, pn532AckFrame) {
		t.Errorf("last host frame = % X, want ACK to abort the command", last)
	}
}

func TestPN532Chip_BadResponseSendsNack(t *testing.T) {
	bad := chipFrame(cmdGetFirmwareVersion+1, 0x32, 0x01, 0x06, 0x07)
	bad[len(bad)-2]++
	tr := &scriptTransport{reads: [][]byte{pn532AckFrame, bad}}
	chip := NewPN532Chip(tr)

	if _, err := chip.FirmwareVersion(); err == nil {
		t.Fatal("expected checksum error")
	}
	last := tr.writes[len(tr.writes)-1]
	if !bytes.Equal(last, pn532NackFrame) {
		t.Errorf("last host frame = % X, want NACK", last)
	}
}

func TestPN532Chip_UnexpectedResponseCode(t *testing.T) {
	tr := &scriptTransport{reads: [][]byte{pn532AckFrame, chipFrame(0x15)}}
	chip := NewPN532Chip(tr)
	if _, err := chip.FirmwareVersion(); GetErrorCode(err) != ErrCodeTransport {
		t.Errorf("FirmwareVersion() error = %v, want transport error", err)
	}
}

func TestPN532Chip_SAMConfig(t *testing.T) {
	tr := &scriptTransport{}
	tr.respond(cmdSAMConfiguration)
	tr.respond(cmdRFConfiguration)
	chip := NewPN532Chip(tr)

	if err := chip.SAMConfig(); err != nil {
		t.Fatalf("SAMConfig() failed: %v", err)
	}
	if got := tr.sent(t, 0); !bytes.Equal(got, []byte{0x14, 0x01, 0x14, 0x01}) {
		t.Errorf("SAMConfiguration = % X", got)
	}
	if got := tr.sent(t, 1); !bytes.Equal(got, []byte{0x32, 0x05, 0xFF, 0x01, pn532PassiveRetries}) {
		t.Errorf("RFConfiguration = % X", got)
	}
}

func TestPN532Chip_ReadPassiveTargetID(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		wantUID  string
		wantATQA uint16
		wantSAK  byte
		wantErr  ErrorCode
	}{
		{
			name:     "classic",
			response: []byte{0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0x04, 0x11, 0x22, 0x33},
			wantUID:  "04112233",
			wantATQA: 0x0004,
			wantSAK:  0x08,
		},
		{
			name:     "ntag",
			response: []byte{0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0x80},
			wantUID:  "04A1B2C3D4E580",
			wantATQA: 0x0044,
			wantSAK:  0x00,
		},
		{
			name:     "no target",
			response: []byte{0x00},
			wantErr:  ErrCodeNoTag,
		},
		{
			name:     "short",
			response: []byte{0x01, 0x01, 0x00, 0x04, 0x08, 0x07, 0x04},
			wantErr:  ErrCodeTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptTransport{}
			tr.respond(cmdInListPassiveTarget, tt.response...)
			chip := NewPN532Chip(tr)

			target, err := chip.ReadPassiveTargetID(context.Background(), NoTimeout)
			if tt.wantErr != 0 {
				if GetErrorCode(err) != tt.wantErr {
					t.Errorf("error = %v, want code %d", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadPassiveTargetID() failed: %v", err)
			}
			if target.Identity.UID() != tt.wantUID || target.ATQA != tt.wantATQA || target.SAK != tt.wantSAK {
				t.Errorf("target = %s/%04X/%02X, want %s/%04X/%02X",
					target.Identity, target.ATQA, target.SAK, tt.wantUID, tt.wantATQA, tt.wantSAK)
			}
			if got := tr.sent(t, 0); !bytes.Equal(got, []byte{0x4A, 0x01, 0x00}) {
				t.Errorf("InListPassiveTarget = % X", got)
			}
		})
	}
}

func TestPN532Chip_SetRFField(t *testing.T) {
	tr := &scriptTransport{}
	tr.respond(cmdRFConfiguration)
	tr.respond(cmdRFConfiguration)
	chip := NewPN532Chip(tr)

	if err := chip.SetRFField(0, false); err != nil {
		t.Fatal(err)
	}
	if err := chip.SetRFField(1, true); err != nil {
		t.Fatal(err)
	}
	if got := tr.sent(t, 0); !bytes.Equal(got, []byte{0x32, 0x01, 0x00}) {
		t.Errorf("field off = % X", got)
	}
	if got := tr.sent(t, 1); !bytes.Equal(got, []byte{0x32, 0x01, 0x03}) {
		t.Errorf("field on with RFCA = % X", got)
	}
}

func detectClassic(t *testing.T, tr *scriptTransport) *PN532Chip {
	t.Helper()
	tr.respond(cmdInListPassiveTarget, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0x04, 0x11, 0x22, 0x33)
	chip := NewPN532Chip(tr)
	if _, err := chip.ReadPassiveTargetID(context.Background(), NoTimeout); err != nil {
		t.Fatal(err)
	}
	tr.writes = nil
	return chip
}

func TestPN532Chip_ClassicCard(t *testing.T) {
	tr := &scriptTransport{}
	chip := detectClassic(t, tr)

	if _, err := chip.ClassicCard(type2UID); GetErrorCode(err) != ErrCodeNoTag {
		t.Errorf("ClassicCard(other) error = %v, want no tag", err)
	}
	card, err := chip.ClassicCard(classicUID)
	if err != nil {
		t.Fatal(err)
	}

	tr.respond(cmdInDataExchange, 0x00)
	if err := card.Authenticate(7, KeyNFCForum, KeyTypeA); err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}
	want := []byte{0x40, 0x01, 0x60, 0x07, 0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7, 0x04, 0x11, 0x22, 0x33}
	if got := tr.sent(t, 0); !bytes.Equal(got, want) {
		t.Errorf("auth = % X, want % X", got, want)
	}

	block := bytes.Repeat([]byte{0xAB}, 16)
	tr.respond(cmdInDataExchange, append([]byte{0x00}, block...)...)
	got, err := card.ReadBlock(4)
	if err != nil {
		t.Fatalf("ReadBlock() failed: %v", err)
	}
	if !bytes.Equal(got[:], block) {
		t.Errorf("ReadBlock() = % X", got)
	}

	tr.respond(cmdInDataExchange, 0x00)
	var data [16]byte
	data[0] = 0x03
	if err := card.WriteBlock(4, data); err != nil {
		t.Fatalf("WriteBlock() failed: %v", err)
	}
	if got := tr.sent(t, 2); !bytes.Equal(got[:4], []byte{0x40, 0x01, 0xA0, 0x04}) || len(got) != 20 {
		t.Errorf("write = % X", got)
	}
}

func TestPN532Chip_ClassicReselectAfterFailedAuth(t *testing.T) {
	tr := &scriptTransport{}
	chip := detectClassic(t, tr)
	card, _ := chip.ClassicCard(classicUID)

	tr.respond(cmdInDataExchange, 0x14) // authentication error
	if err := card.Authenticate(3, KeyMAD, KeyTypeA); err == nil {
		t.Fatal("expected auth failure")
	}

	tr.respond(cmdInListPassiveTarget, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0x04, 0x11, 0x22, 0x33)
	tr.respond(cmdInDataExchange, 0x00)
	if err := card.Authenticate(3, KeyDefault, KeyTypeA); err != nil {
		t.Fatalf("second Authenticate() failed: %v", err)
	}
	if got := tr.sent(t, 1); got[0] != cmdInListPassiveTarget {
		t.Errorf("expected re-select before second auth, got % X", got)
	}
}

func TestPN532Chip_UltralightCard(t *testing.T) {
	tr := &scriptTransport{}
	tr.respond(cmdInListPassiveTarget, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0x80)
	chip := NewPN532Chip(tr)
	if _, err := chip.ReadPassiveTargetID(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	card, err := chip.UltralightCard(type2UID)
	if err != nil {
		t.Fatal(err)
	}

	pages := []byte{0xE1, 0x10, 0x12, 0x00, 0x03, 0x00, 0xFE, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	tr.respond(cmdInDataExchange, append([]byte{0x00}, pages...)...)
	page, err := card.ReadPage(3)
	if err != nil {
		t.Fatal(err)
	}
	if page != [4]byte{0xE1, 0x10, 0x12, 0x00} {
		t.Errorf("ReadPage() = % X", page)
	}

	tr.respond(cmdInDataExchange, 0x00)
	if err := card.WritePage(4, [4]byte{0x03, 0x00, 0xFE, 0x00}); err != nil {
		t.Fatal(err)
	}
	if got := tr.sent(t, 2); !bytes.Equal(got, []byte{0x40, 0x01, 0xA2, 0x04, 0x03, 0x00, 0xFE, 0x00}) {
		t.Errorf("write page = % X", got)
	}
}

func TestPN532Chip_Close(t *testing.T) {
	tr := &scriptTransport{}
	if err := NewPN532Chip(tr).Close(); err != nil || !tr.closed {
		t.Error("Close() not forwarded to transport")
	}
}

func TestPN532Chip_AdapterIntegration(t *testing.T) {
	tr := &scriptTransport{}
	tr.respond(cmdGetFirmwareVersion, 0x32, 0x01, 0x06, 0x07)
	tr.respond(cmdSAMConfiguration)
	tr.respond(cmdRFConfiguration)
	tr.respond(cmdInListPassiveTarget, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0x04, 0x11, 0x22, 0x33)

	logger, _ := test.NewNullLogger()
	adapter := NewAdapter(NewPN532Chip(tr), nil, WithLogger(logger))

	if err := adapter.Begin(false); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if !adapter.TagPresent(NoTimeout) {
		t.Fatal("TagPresent() = false")
	}
	if adapter.Technology() != TechnologyMifareClassic {
		t.Errorf("Technology() = %v", adapter.Technology())
	}
	if adapter.TagPresent(NoTimeout) {
		t.Error("TagPresent() = true with no chip output")
	}
	if !adapter.Identity().Equal(classicUID) {
		t.Error("failed presence changed the identity")
	}
}
