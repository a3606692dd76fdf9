package nfc

import (
	"bytes"
	"fmt"
)

// Type Name Format values for NDEF records.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMimeMedia   byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// NDEFMessage represents a structured NDEF message with multiple records.
type NDEFMessage struct {
	records []NDEFRecord
}

// NDEFRecord represents a single NDEF record within a message.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// IsEmpty reports whether this is an empty record (TNF 0x00).
func (r *NDEFRecord) IsEmpty() bool {
	return r.TNF == TNFEmpty
}

// IsTextRecord returns true if this is a Text Record.
func (r *NDEFRecord) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'T'
}

// IsURIRecord returns true if this is a URI Record.
func (r *NDEFRecord) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'U'
}

// GetText extracts text from a Text Record (TNF=0x01, Type='T').
// Returns (text, true) if this is a text record, or ("", false) otherwise.
func (r *NDEFRecord) GetText() (string, bool) {
	if !r.IsTextRecord() {
		return "", false
	}
	text, err := parseTextRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return text, true
}

// GetURI extracts URI from a URI Record (TNF=0x01, Type='U').
// Returns (uri, true) if this is a URI record, or ("", false) otherwise.
func (r *NDEFRecord) GetURI() (string, bool) {
	if !r.IsURIRecord() {
		return "", false
	}
	uri, err := parseURIRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return uri, true
}

func (r NDEFRecord) clone() NDEFRecord {
	return NDEFRecord{
		TNF:     r.TNF,
		Type:    bytes.Clone(r.Type),
		ID:      bytes.Clone(r.ID),
		Payload: bytes.Clone(r.Payload),
	}
}

// NewNDEFMessage creates a new empty NDEF message.
func NewNDEFMessage() *NDEFMessage {
	return &NDEFMessage{records: []NDEFRecord{}}
}

// AddRecord adds a raw NDEF record to the message.
func (m *NDEFMessage) AddRecord(record NDEFRecord) *NDEFMessage {
	m.records = append(m.records, record.clone())
	return m
}

// AddEmptyRecord adds a record with TNF 0x00 and no type, ID or payload.
// A message holding a single empty record is what an erased tag contains.
func (m *NDEFMessage) AddEmptyRecord() *NDEFMessage {
	m.records = append(m.records, NDEFRecord{TNF: TNFEmpty})
	return m
}

// AddText adds an NDEF Text Record to the message.
func (m *NDEFMessage) AddText(text, langCode string) *NDEFMessage {
	if langCode == "" {
		langCode = "en"
	}
	m.records = append(m.records, NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("T"),
		Payload: MakeTextRecordPayload(text, langCode),
	})
	return m
}

// AddURI adds an NDEF URI Record to the message.
func (m *NDEFMessage) AddURI(uri string) *NDEFMessage {
	m.records = append(m.records, NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		Payload: MakeURIRecordPayload(uri),
	})
	return m
}

// AddMimeMediaRecord adds a MIME media record, e.g. "application/json".
func (m *NDEFMessage) AddMimeMediaRecord(mimeType string, payload []byte) *NDEFMessage {
	m.records = append(m.records, NDEFRecord{
		TNF:     TNFMimeMedia,
		Type:    []byte(mimeType),
		Payload: bytes.Clone(payload),
	})
	return m
}

// Encode converts the NDEF message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if len(m.records) == 0 {
		return nil, fmt.Errorf("cannot encode empty NDEF message")
	}
	return encodeNDEFRecords(m.records)
}

// Records returns a copy of the records in this message.
func (m *NDEFMessage) Records() []NDEFRecord {
	out := make([]NDEFRecord, len(m.records))
	for i, r := range m.records {
		out[i] = r.clone()
	}
	return out
}

// RecordCount returns the number of records in the message.
func (m *NDEFMessage) RecordCount() int {
	return len(m.records)
}

// GetText returns the text content from the first Text Record in the message.
func (m *NDEFMessage) GetText() (string, error) {
	for _, r := range m.records {
		if text, ok := r.GetText(); ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("no text record found in NDEF message")
}

// GetURI returns the URI from the first URI Record in the message.
func (m *NDEFMessage) GetURI() (string, error) {
	for _, r := range m.records {
		if uri, ok := r.GetURI(); ok {
			return uri, nil
		}
	}
	return "", fmt.Errorf("no URI record found in NDEF message")
}

// ToJSONMap converts the message into a JSON-friendly map for the server.
func (m *NDEFMessage) ToJSONMap() map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(m.records))
	for _, r := range m.records {
		entry := map[string]interface{}{
			"tnf":     r.TNF,
			"type":    string(r.Type),
			"payload": r.Payload,
		}
		if len(r.ID) > 0 {
			entry["id"] = string(r.ID)
		}
		if text, ok := r.GetText(); ok {
			entry["text"] = text
		}
		if uri, ok := r.GetURI(); ok {
			entry["uri"] = uri
		}
		records = append(records, entry)
	}
	return map[string]interface{}{
		"type":    "ndef",
		"records": records,
	}
}

func (m *NDEFMessage) clone() *NDEFMessage {
	return &NDEFMessage{records: m.Records()}
}

// DecodeNDEF parses raw bytes into an NDEFMessage.
// Returns error if the data is not valid NDEF format.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseNDEFRecords(data)
	if err != nil {
		return nil, err
	}
	return &NDEFMessage{records: records}, nil
}
