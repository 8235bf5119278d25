package model

import (
	"encoding/json"
	"net/http"
)

// EnvelopeType discriminates the three envelope variants.
type EnvelopeType string

const (
	EnvelopeText         EnvelopeType = "text"
	EnvelopeToolResponse EnvelopeType = "tool_response"
	EnvelopeError        EnvelopeType = "error"
)

// ErrorCode classifies protocol-level dispatch failures.
type ErrorCode string

const (
	// CodeUnknownTool marks a model-proposed tool name outside the registry.
	CodeUnknownTool ErrorCode = "unknown_tool"
	// CodeInvalidArguments marks a tool call whose arguments fail schema validation.
	CodeInvalidArguments ErrorCode = "invalid_arguments"
	// CodeInternal marks a fault inside the model call or a tool handler.
	CodeInternal ErrorCode = "internal"
)

// ProtocolError is the error payload of the error envelope variant.
type ProtocolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Envelope is the uniform tagged result of one dispatch cycle. Exactly one
// variant is populated; construct only through the helpers below.
type Envelope struct {
	Type EnvelopeType    `json:"type"`
	Tool string          `json:"tool,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Err  *ProtocolError  `json:"error,omitempty"`
}

// TextEnvelope wraps a plain model reply.
func TextEnvelope(content string) Envelope {
	data, _ := json.Marshal(content)
	return Envelope{Type: EnvelopeText, Data: data}
}

// ToolEnvelope wraps a tool handler's returned payload verbatim.
func ToolEnvelope(tool string, payload json.RawMessage) Envelope {
	return Envelope{Type: EnvelopeToolResponse, Tool: tool, Data: payload}
}

// ErrorEnvelope wraps a protocol-level failure.
func ErrorEnvelope(code ErrorCode, message string) Envelope {
	return Envelope{Type: EnvelopeError, Err: &ProtocolError{Code: code, Message: message}}
}

// HTTPStatus maps the envelope to the status code of the chat endpoint:
// client-caused protocol errors are 400, internal faults 500, all other
// outcomes 200.
func (e Envelope) HTTPStatus() int {
	if e.Type != EnvelopeError || e.Err == nil {
		return http.StatusOK
	}
	switch e.Err.Code {
	case CodeUnknownTool, CodeInvalidArguments:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
