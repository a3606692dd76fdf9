package nfc

// Tag is the technology-agnostic result of a read.
//
// A Tag always carries the identity it was read from. The NDEF message is
// optional: a Tag without one means the tag was seen but nothing could be
// decoded from it, which is not an error by itself.
//
// Example:
//
//	tag, err := adapter.Read()
//	if tag.HasNDEFMessage() {
//	    text, _ := tag.NDEFMessage().GetText()
//	}
type Tag struct {
	id         Identity
	technology Technology
	message    *NDEFMessage
}

// NewTag creates a Tag that carries only an identity.
func NewTag(id Identity, technology Technology) *Tag {
	return &Tag{id: id, technology: technology}
}

// NewTagWithMessage creates a Tag with a decoded NDEF message. A nil message
// is the same as calling NewTag.
func NewTagWithMessage(id Identity, technology Technology, msg *NDEFMessage) *Tag {
	t := NewTag(id, technology)
	if msg != nil {
		t.message = msg.clone()
	}
	return t
}

// Identity returns the identity the tag was read from.
func (t *Tag) Identity() Identity {
	return t.id
}

// UID returns the identity as upper-case hex.
func (t *Tag) UID() string {
	return t.id.UID()
}

// Technology returns the technology the tag was classified as.
func (t *Tag) Technology() Technology {
	return t.technology
}

// HasNDEFMessage reports whether a message was decoded from the tag.
func (t *Tag) HasNDEFMessage() bool {
	return t.message != nil
}

// NDEFMessage returns a copy of the decoded message, or nil.
func (t *Tag) NDEFMessage() *NDEFMessage {
	if t.message == nil {
		return nil
	}
	return t.message.clone()
}
