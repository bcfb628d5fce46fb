package ws

// Inbound frame types the client may send. Everything else is ignored.
const (
	msgJoin        = "join"
	msgLeave       = "leave"
	msgTyping      = "typing"
	msgSendMessage = "send_message"
)

// envelope is the first-pass decode of an inbound frame; the type
// discriminator decides how the rest of the frame is read.
type envelope struct {
	Type string `json:"type"`
	Room string `json:"room"`
}
