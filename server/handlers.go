package server

import (
	"encoding/base64"
	"fmt"

	"github.com/nedpals/davi-nfc-adapter/nfc"
)

// WriteRecord represents a single NDEF record in the write request
type WriteRecord struct {
	// Type specifies the record type: "text", "uri", "mime" or "empty"
	Type string `json:"type"`

	// Content is the text or URI content. For mime records it holds the
	// base64-encoded payload.
	Content string `json:"content"`

	// Language code for text records (default: "en")
	Language string `json:"language,omitempty"`

	// MimeType is the media type of a mime record
	MimeType string `json:"mimeType,omitempty"`
}

// WriteRequest represents a request to write data to an NFC tag.
// This API follows the "overwrite" approach - clients send the complete
// NDEF message to write. To append, clients should read current data,
// modify it, and send back the complete message.
type WriteRequest struct {
	// Records is an array of NDEF records to write
	Records []WriteRecord `json:"records"`
}

// SetFieldRequest switches the reader's RF field.
type SetFieldRequest struct {
	On bool `json:"on"`
}

// BuildNDEFMessage builds an NDEF message from the request.
// This always creates a complete NDEF message that will overwrite the tag.
func BuildNDEFMessage(writeReq WriteRequest) (*nfc.NDEFMessage, error) {
	if len(writeReq.Records) == 0 {
		return nil, fmt.Errorf("no records provided in write request")
	}

	msg := nfc.NewNDEFMessage()
	for i, record := range writeReq.Records {
		recordType := record.Type
		if recordType == "" {
			recordType = "text"
		}

		switch recordType {
		case "text":
			language := record.Language
			if language == "" {
				language = "en"
			}
			msg.AddText(record.Content, language)
		case "uri":
			if record.Content == "" {
				return nil, fmt.Errorf("empty URI at index %d", i)
			}
			msg.AddURI(record.Content)
		case "mime":
			if record.MimeType == "" {
				return nil, fmt.Errorf("missing mimeType at index %d", i)
			}
			payload, err := base64.StdEncoding.DecodeString(record.Content)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 payload at index %d: %w", i, err)
			}
			msg.AddMimeMediaRecord(record.MimeType, payload)
		case "empty":
			msg.AddEmptyRecord()
		default:
			return nil, fmt.Errorf("unsupported record type '%s' at index %d", recordType, i)
		}
	}

	return msg, nil
}
