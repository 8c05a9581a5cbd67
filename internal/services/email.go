package services

import (
	"encoding/base64"
	"strings"

	"github.com/jedmorris/CRM-manager/pkg/gmailapi"
)

// EmailData is the normalized view of one inbound email used by the
// trigger matcher and the template context.
type EmailData struct {
	MessageID   string
	ThreadID    string
	From        string
	To          string
	Cc          string
	Subject     string
	Date        string
	Body        string
	HTMLBody    string
	Attachments []AttachmentInfo
	InReplyTo   string
	References  string

	HasAttachment bool
	IsReply       bool
}

type AttachmentInfo struct {
	Filename string
	MimeType string
	Size     int
}

// ExtractEmailData flattens a full Gmail message: headers, plain/HTML
// bodies found by walking the MIME tree, attachment metadata, and the
// reply-detection fields.
func ExtractEmailData(msg *gmailapi.Message) *EmailData {
	data := &EmailData{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
	}
	if msg.Payload == nil {
		return data
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			data.From = h.Value
		case "to":
			data.To = h.Value
		case "cc":
			data.Cc = h.Value
		case "subject":
			data.Subject = h.Value
		case "date":
			data.Date = h.Value
		case "in-reply-to":
			data.InReplyTo = strings.TrimSpace(h.Value)
		case "references":
			data.References = strings.TrimSpace(h.Value)
		}
	}

	walkParts(msg.Payload, data)

	data.HasAttachment = len(data.Attachments) > 0
	// Heuristic: a non-empty In-Reply-To header or at least one References
	// token marks the message as a reply. Not a guarantee.
	data.IsReply = data.InReplyTo != "" || len(strings.Fields(data.References)) > 0
	return data
}

func walkParts(part *gmailapi.MessagePart, data *EmailData) {
	if part == nil {
		return
	}
	if part.Filename != "" {
		data.Attachments = append(data.Attachments, AttachmentInfo{
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     part.Body.Size,
		})
	} else if part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if data.Body == "" {
				data.Body = decodeBody(part.Body.Data)
			}
		case "text/html":
			if data.HTMLBody == "" {
				data.HTMLBody = decodeBody(part.Body.Data)
			}
		}
	}
	for _, child := range part.Parts {
		walkParts(child, data)
	}
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

// TemplateContext exposes the email under the "email" key for templates.
func (e *EmailData) TemplateContext() map[string]interface{} {
	names := make([]interface{}, 0, len(e.Attachments))
	for _, a := range e.Attachments {
		names = append(names, a.Filename)
	}
	body := e.Body
	if body == "" {
		body = e.HTMLBody
	}
	return map[string]interface{}{
		"email": map[string]interface{}{
			"message_id":     e.MessageID,
			"thread_id":      e.ThreadID,
			"from":           e.From,
			"to":             e.To,
			"cc":             e.Cc,
			"subject":        e.Subject,
			"date":           e.Date,
			"body":           body,
			"has_attachment": e.HasAttachment,
			"is_reply":       e.IsReply,
			"attachments":    names,
		},
	}
}
