package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nedpals/davi-nfc-adapter/nfc"
	"github.com/sirupsen/logrus"
)

// RequestError is returned by handlers for requests that never reached the
// reader.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ErrorCodeName returns the wire code reported to clients for err.
func ErrorCodeName(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code
	}

	switch nfc.GetErrorCode(err) {
	case nfc.ErrCodeNotSupported:
		return "NOT_SUPPORTED"
	case nfc.ErrCodeAuthFailed:
		return "AUTH_FAILED"
	case nfc.ErrCodeReadFailed:
		return "READ_FAILED"
	case nfc.ErrCodeWriteFailed:
		return "WRITE_FAILED"
	case nfc.ErrCodeCapacityExceeded:
		return "CAPACITY_EXCEEDED"
	case nfc.ErrCodeInvalidData:
		return "INVALID_DATA"
	case nfc.ErrCodeNoTag:
		return "NO_TAG"
	case nfc.ErrCodeChipNotFound:
		return "CHIP_NOT_FOUND"
	case nfc.ErrCodeTransport:
		return "TRANSPORT_ERROR"
	}
	return "INTERNAL_ERROR"
}

// NFCHandler handles all NFC-related operations.
// It groups related NFC handler functions together for better organization.
type NFCHandler struct {
	reader *Reader
	log    logrus.FieldLogger
}

// NewNFCHandler creates a new NFC handler.
func NewNFCHandler(reader *Reader, logger logrus.FieldLogger) *NFCHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NFCHandler{
		reader: reader,
		log:    logger,
	}
}

// Register implements ServerHandler interface.
// It sets up message handlers and lifecycle in one place.
func (h *NFCHandler) Register(server HandlerServer) {
	server.Handle(WSMessageTypeWrite, h.handleWrite)
	server.Handle(WSMessageTypeErase, h.simple("erase", h.reader.Erase))
	server.Handle(WSMessageTypeFormat, h.simple("format", h.reader.Format))
	server.Handle(WSMessageTypeClean, h.simple("clean", h.reader.Clean))
	server.Handle(WSMessageTypeSetField, h.handleSetField)

	server.StartLifecycle(func(ctx context.Context) {
		go h.reader.Run(ctx)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-h.reader.Data():
					server.BroadcastTagData(ev)
				}
			}
		}()
	})
}

// handleWrite processes a write request from a WebSocket client.
func (h *NFCHandler) handleWrite(ctx context.Context, req WebsocketRequest) (any, error) {
	var writeReq WriteRequest
	if err := json.Unmarshal(req.Payload, &writeReq); err != nil {
		h.log.WithError(err).Warn("failed to parse write request")
		return nil, &RequestError{Code: ErrCodeInvalidPayload, Message: "Failed to parse write request"}
	}

	msg, err := BuildNDEFMessage(writeReq)
	if err != nil {
		return nil, &RequestError{Code: ErrCodeInvalidPayload, Message: err.Error()}
	}

	if err := h.reader.Write(msg); err != nil {
		h.log.WithError(err).Warn("write operation failed")
		return nil, err
	}

	h.log.WithField("records", msg.RecordCount()).Info("wrote NDEF message")
	return map[string]interface{}{
		"message": "Write operation completed successfully",
		"records": msg.RecordCount(),
	}, nil
}

// simple wraps a reader operation that takes no payload.
func (h *NFCHandler) simple(name string, op func() error) HandlerFunc {
	return func(ctx context.Context, req WebsocketRequest) (any, error) {
		if err := op(); err != nil {
			h.log.WithError(err).Warnf("%s operation failed", name)
			return nil, err
		}
		h.log.Infof("%s operation completed", name)
		return map[string]interface{}{
			"message": name + " operation completed successfully",
		}, nil
	}
}

func (h *NFCHandler) handleSetField(ctx context.Context, req WebsocketRequest) (any, error) {
	var fieldReq SetFieldRequest
	if err := json.Unmarshal(req.Payload, &fieldReq); err != nil {
		return nil, &RequestError{Code: ErrCodeInvalidPayload, Message: "Failed to parse setField request"}
	}
	if err := h.reader.SetField(fieldReq.On); err != nil {
		h.log.WithError(err).Warn("setField operation failed")
		return nil, err
	}
	return map[string]interface{}{"on": fieldReq.On}, nil
}
