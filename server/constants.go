package server

import "github.com/nedpals/davi-nfc-adapter/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-adapter._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication
const (
	WSMessageTypeTagData  = "tagData"
	WSMessageTypeWrite    = "write"
	WSMessageTypeErase    = "erase"
	WSMessageTypeFormat   = "format"
	WSMessageTypeClean    = "clean"
	WSMessageTypeSetField = "setField"
	WSMessageTypeError    = "error"

	// WSResponseSuffix is appended to a request type to form its response type.
	WSResponseSuffix = "Response"
)

// Error codes carried in error payloads
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
