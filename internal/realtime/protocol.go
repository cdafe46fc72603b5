package realtime

import "encoding/json"

// Event names carried in WsMessage.Type.
const (
	EventChatMessage   = "chat message"
	EventEditMessage   = "edit message"
	EventDeleteMessage = "delete message"
	EventClearMessages = "clear messages"
)

// WsMessage is the envelope for every frame in both directions.
type WsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ChatMessageRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type DeletedMessage struct {
	ID uint `json:"id"`
}

func NewWsMessage(typ string, payload interface{}) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(WsMessage{
		Type:    typ,
		Payload: p,
	})
}
