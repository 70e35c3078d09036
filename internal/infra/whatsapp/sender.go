// internal/infra/whatsapp/sender.go
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"lead_notification_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Sender implements message.Sender on top of the WhatsApp session.
// Send failures are classified: unregistered numbers are
// Invalid (terminal), an unauthenticated session is NotReady, everything
// else Transient.
type Sender struct {
	session *Session
	logger  *logrus.Logger
}

func NewSender(session *Session, logger *logrus.Logger) *Sender {
	return &Sender{session: session, logger: logger}
}

// SendText sends one templated text message to a normalized phone.
func (s *Sender) SendText(ctx context.Context, phone, text string) error {
	jid, err := s.resolveJID(ctx, phone)
	if err != nil {
		return err
	}

	_, err = s.session.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return &message.SendError{Reason: message.ReasonTransient, Err: err}
	}
	return nil
}

// SendDocument sends a file attachment with caption as one logical
// operation. An unreadable attachment degrades to sending the caption alone
// with a warning; that is not a send failure.
func (s *Sender) SendDocument(ctx context.Context, phone, filePath, caption string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		s.logger.Warnf("Catalog file %q unavailable (%v), sending caption only.", filePath, err)
		return s.SendText(ctx, phone, caption)
	}

	jid, err := s.resolveJID(ctx, phone)
	if err != nil {
		return err
	}

	uploaded, err := s.session.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return &message.SendError{Reason: message.ReasonTransient, Err: fmt.Errorf("upload: %w", err)}
	}

	fileName := filepath.Base(filePath)
	mimeType := mime.TypeByExtension(filepath.Ext(filePath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	_, err = s.session.client.SendMessage(ctx, jid, &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(fileName),
			Title:         proto.String(fileName),
			Caption:       proto.String(caption),
		},
	})
	if err != nil {
		return &message.SendError{Reason: message.ReasonTransient, Err: err}
	}
	return nil
}

// resolveJID verifies the phone is registered and returns its JID.
func (s *Sender) resolveJID(ctx context.Context, phone string) (types.JID, error) {
	if !s.session.Ready() {
		return types.JID{}, &message.SendError{
			Reason: message.ReasonNotReady,
			Err:    errors.New("session not authenticated"),
		}
	}

	resp, err := s.session.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return types.JID{}, &message.SendError{Reason: message.ReasonTransient, Err: fmt.Errorf("registry lookup: %w", err)}
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, &message.SendError{
			Reason: message.ReasonInvalid,
			Err:    fmt.Errorf("%s is not registered on WhatsApp", phone),
		}
	}
	return resp[0].JID, nil
}
