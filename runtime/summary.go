package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"context"
	"fmt"
	"log/slog"
)

const (
	previewLength = 50
	unknownSender = "Someone"
)

// fallbackContent is what an offline recipient reads later.
type fallbackContent struct {
	summary    string
	entityID   int64
	entityType domain.EntityType
}

// summarizer renders fallback text, resolving names and previews from the data layer.
// Lookups failing never block a fallback: defaults are rendered instead.
type summarizer struct {
	log      *slog.Logger
	users    contract.UserDirectory
	messages contract.MessageDirectory
}

func (s summarizer) describe(ctx context.Context, sender domain.UserID, env event.Envelope) fallbackContent {
	name := s.senderName(ctx, sender)

	switch p := env.Body.(type) {
	case *event.MessagePayload:
		content := s.messageContent(ctx, p)
		summary := fmt.Sprintf("New message from %s", name)
		if content != "" {
			summary = fmt.Sprintf("New message from %s: %s", name, preview(content))
		}
		return fallbackContent{summary: summary, entityID: int64(p.GroupID), entityType: domain.EntityGroup}
	case *event.DocumentPayload:
		verb := "New document created"
		if env.Type == event.DocumentUpdated {
			verb = "Document updated"
		}
		return fallbackContent{
			summary:    fmt.Sprintf("%s: %q by %s", verb, orDefault(p.Title, "Untitled"), name),
			entityID:   p.DocumentID,
			entityType: domain.EntityDocument,
		}
	case *event.FilePayload:
		return fallbackContent{
			summary:    fmt.Sprintf("New file uploaded: %q by %s", orDefault(p.Name, "unnamed file"), name),
			entityID:   p.FileID,
			entityType: domain.EntityFile,
		}
	default:
		group, _ := env.Group()
		return fallbackContent{
			summary:    fmt.Sprintf("%s activity by %s", env.Type, name),
			entityID:   int64(group),
			entityType: domain.EntityGroup,
		}
	}
}

func (s summarizer) senderName(ctx context.Context, sender domain.UserID) string {
	if sender.IsZero() {
		return unknownSender
	}
	user, found, err := s.users.GetUser(ctx, sender)
	if err != nil {
		s.log.Warn("sender lookup failed", "user_id", sender, "error", err)
		return unknownSender
	}
	if !found || user.Name() == "" {
		return unknownSender
	}
	return user.Name()
}

func (s summarizer) messageContent(ctx context.Context, p *event.MessagePayload) string {
	if p.MessageID > 0 {
		msg, found, err := s.messages.GetMessage(ctx, p.MessageID)
		switch {
		case err != nil:
			s.log.Warn("message lookup failed", "message_id", p.MessageID, "error", err)
		case found && msg.Content != "":
			return msg.Content
		}
	}
	return p.Content
}

// preview keeps the first runes of a message, marking the cut.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
