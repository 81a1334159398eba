package models

// Inbound event names.
const (
	EventChat    = "chat"
	EventHistory = "history"
)

// Outbound event names.
const (
	EventMessage     = "message"
	EventResponse    = "response"
	EventResponseEnd = "response_end"
)

// Frame is the websocket envelope for every event in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ChatRequest struct {
	Text        string `json:"text"`
	HTML        string `json:"html,omitempty"`
	Model       string `json:"model,omitempty"`
	ChatSession string `json:"chatSession"`
}

type HistoryRequest struct {
	ChatSession string `json:"chatSession"`
}

// MessagePayload carries notices, reply fragments and the end marker.
type MessagePayload struct {
	Message string `json:"message"`
}

type HistoryPayload struct {
	History []Turn `json:"history"`
}
