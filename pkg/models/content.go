package models

// ContentType identifies the kind of a tool output part.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// Content is a single part of a tool's output. Tool results are lists of
// Content so tools can mix text with binary attachments.
type Content struct {
	Type ContentType `json:"type"`

	// Text content.
	Text string `json:"text,omitempty"`

	// Image content, base64 encoded.
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// TextContent is the payload of a text message content part.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent is the payload of an image message content part, base64
// encoded.
type ImageContent struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// NewTextContent creates a text content part.
func NewTextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// NewImageContent creates an image content part from base64 data.
func NewImageContent(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

// ConcatText joins the text parts of a content list with newlines.
func ConcatText(contents []Content) string {
	var out string
	for _, c := range contents {
		if c.Type != ContentText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	return out
}
