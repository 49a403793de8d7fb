package model

import (
	openai "github.com/sashabaranov/go-openai"
)

const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeAPI            = "api_error"
	ErrorTypeInternal       = "internal_error"
)

// NewErrorResponse builds the OpenAI error envelope {"error":{...}}.
func NewErrorResponse(message, errType string) openai.ErrorResponse {
	return openai.ErrorResponse{
		Error: &openai.APIError{
			Message: message,
			Type:    errType,
		},
	}
}

type ModelList struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

type EndpointMap struct {
	Chat   string `json:"chat"`
	Models string `json:"models"`
	Health string `json:"health"`
}

type RootResponse struct {
	Message     string      `json:"message"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	Endpoints   EndpointMap `json:"endpoints"`
}
