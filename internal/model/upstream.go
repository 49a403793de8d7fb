package model

const TriggerSubmitMessage = "submit-message"

type UpstreamPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type UpstreamMessage struct {
	Parts []UpstreamPart `json:"parts"`
	ID    string         `json:"id"`
	Role  string         `json:"role"`
}

// UpstreamRequest is the JSON body posted to the upstream chat endpoint.
type UpstreamRequest struct {
	Context  []interface{}     `json:"context"`
	Model    string            `json:"model"`
	ID       string            `json:"id"`
	Messages []UpstreamMessage `json:"messages"`
	Trigger  string            `json:"trigger"`
}

func NewUpstreamRequest(modelName, requestID string, messages []UpstreamMessage) UpstreamRequest {
	return UpstreamRequest{
		Context:  []interface{}{},
		Model:    modelName,
		ID:       requestID,
		Messages: messages,
		Trigger:  TriggerSubmitMessage,
	}
}

// Credential is the anti-automation payload sent in the x-is-human header.
// V is a nonce regenerated on every read.
type Credential struct {
	B  int     `json:"b"`
	V  float64 `json:"v"`
	E  string  `json:"e"`
	S  string  `json:"s"`
	D  int     `json:"d"`
	VR string  `json:"vr"`
}
