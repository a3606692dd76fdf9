package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// uriPrefixes is the NFC Forum URI record identifier code table.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// MakeTextRecordPayload creates an NDEF Text Record payload with the specified text and language code.
func MakeTextRecordPayload(text string, langCodeStr string) []byte {
	if langCodeStr == "" {
		langCodeStr = "en"
	}
	langCode := []byte(langCodeStr)
	if len(langCode) > 0x3F {
		langCode = langCode[:0x3F]
	}
	textBytes := []byte(text)
	statusByte := byte(len(langCode)) // UTF-8
	payload := make([]byte, 1+len(langCode)+len(textBytes))
	payload[0] = statusByte
	copy(payload[1:], langCode)
	copy(payload[1+len(langCode):], textBytes)
	return payload
}

// parseTextRecordPayload extracts text from an NDEF Text Record's payload.
func parseTextRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLength := int(status & 0x3F)
	isUTF16 := (status & 0x80) != 0

	textDataStart := 1 + langLength
	if textDataStart > len(payload) {
		return "", fmt.Errorf("text record payload too short (language code or text missing)")
	}
	textBytes := payload[textDataStart:]

	if isUTF16 {
		if len(textBytes) == 0 {
			return "", nil
		}
		if len(textBytes)%2 != 0 {
			return "", fmt.Errorf("invalid UTF-16 text length: %d", len(textBytes))
		}
		return decodeUTF16(textBytes), nil
	}
	return string(textBytes), nil
}

func decodeUTF16(b []byte) string {
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return strings.TrimSpace(string(utf16.Decode(u16s)))
}

// MakeURIRecordPayload creates the payload for an NDEF URI record, using the
// longest matching identifier code.
func MakeURIRecordPayload(uri string) []byte {
	code := 0
	for i, prefix := range uriPrefixes {
		if prefix != "" && strings.HasPrefix(uri, prefix) && len(prefix) > len(uriPrefixes[code]) {
			code = i
		}
	}
	rest := uri[len(uriPrefixes[code]):]
	payload := make([]byte, 1+len(rest))
	payload[0] = byte(code)
	copy(payload[1:], rest)
	return payload
}

// parseURIRecordPayload extracts URI from an NDEF URI record payload.
func parseURIRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("URI record payload too short")
	}
	code := int(payload[0])
	prefix := ""
	if code < len(uriPrefixes) {
		prefix = uriPrefixes[code]
	}
	return prefix + string(payload[1:]), nil
}

// parseNDEFRecords parses raw NDEF message bytes into a slice of NDEFRecord structs.
func parseNDEFRecords(ndefMessage []byte) ([]NDEFRecord, error) {
	if len(ndefMessage) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	var records []NDEFRecord
	offset := 0

	for offset < len(ndefMessage) {
		header := ndefMessage[offset]
		ME := (header & 0x40) != 0 // Message End
		SR := (header & 0x10) != 0 // Short Record
		IL := (header & 0x08) != 0 // ID Length Present
		TNF := header & 0x07

		currentPos := offset + 1

		if currentPos+1 > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated type length at offset %d", currentPos-1)
		}
		typeLength := int(ndefMessage[currentPos])
		currentPos++

		var payloadLength int
		if SR {
			if currentPos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated short record payload length at offset %d", currentPos-1)
			}
			payloadLength = int(ndefMessage[currentPos])
			currentPos++
		} else {
			if currentPos+4 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated payload length at offset %d", currentPos-1)
			}
			payloadLength = int(binary.BigEndian.Uint32(ndefMessage[currentPos : currentPos+4]))
			currentPos += 4
		}

		var idLength int
		if IL {
			if currentPos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated ID length at offset %d", currentPos-1)
			}
			idLength = int(ndefMessage[currentPos])
			currentPos++
		}

		if currentPos+typeLength > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated type field at offset %d", currentPos-1)
		}
		var recordType []byte
		if typeLength > 0 {
			recordType = make([]byte, typeLength)
			copy(recordType, ndefMessage[currentPos:currentPos+typeLength])
			currentPos += typeLength
		}

		var recordID []byte
		if idLength > 0 {
			if currentPos+idLength > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated ID field at offset %d", currentPos-1)
			}
			recordID = make([]byte, idLength)
			copy(recordID, ndefMessage[currentPos:currentPos+idLength])
			currentPos += idLength
		}

		if payloadLength < 0 || currentPos+payloadLength > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated payload at offset %d", currentPos-1)
		}
		var recordPayload []byte
		if payloadLength > 0 {
			recordPayload = make([]byte, payloadLength)
			copy(recordPayload, ndefMessage[currentPos:currentPos+payloadLength])
			currentPos += payloadLength
		}

		records = append(records, NDEFRecord{
			TNF:     TNF,
			Type:    recordType,
			ID:      recordID,
			Payload: recordPayload,
		})

		offset = currentPos
		if ME {
			break
		}
	}

	return records, nil
}

// encodeNDEFRecords encodes a slice of NDEFRecord structs into raw NDEF message bytes.
func encodeNDEFRecords(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var result []byte

	for i, record := range records {
		if len(record.Type) > 0xFF || len(record.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: type or ID longer than 255 bytes", i)
		}

		payloadLen := len(record.Payload)
		isShortRecord := payloadLen <= 0xFF
		hasID := len(record.ID) > 0

		header := record.TNF & 0x07
		if i == 0 {
			header |= 0x80 // MB
		}
		if i == len(records)-1 {
			header |= 0x40 // ME
		}
		if isShortRecord {
			header |= 0x10 // SR
		}
		if hasID {
			header |= 0x08 // IL
		}

		result = append(result, header, byte(len(record.Type)))
		if isShortRecord {
			result = append(result, byte(payloadLen))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(payloadLen))
		}
		if hasID {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		result = append(result, record.ID...)
		result = append(result, record.Payload...)
	}

	return result, nil
}
