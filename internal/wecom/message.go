package wecom

// Message type constants used by the send endpoint.
const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
	MsgTypeFile  = "file"
)

// RecipientAll is the touser sentinel addressing every member of the
// organization.
const RecipientAll = "@all"

// Message is one outbound message: a text body, or a reference to
// previously uploaded media, addressed to a single recipient.
type Message struct {
	To      string
	Type    string
	Content string // text messages only
	MediaID string // image and file messages only
}

// NewText builds a text message.
func NewText(to, content string) Message {
	return Message{To: to, Type: MsgTypeText, Content: content}
}

// NewImage builds an image message carrying an uploaded media id.
func NewImage(to, mediaID string) Message {
	return Message{To: to, Type: MsgTypeImage, MediaID: mediaID}
}

// NewFile builds a file message carrying an uploaded media id.
func NewFile(to, mediaID string) Message {
	return Message{To: to, Type: MsgTypeFile, MediaID: mediaID}
}
