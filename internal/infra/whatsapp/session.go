// internal/infra/whatsapp/session.go
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // sqlstore driver
)

// State is the observable chat-session lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateAwaitingScan  State = "awaiting_scan"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
)

// ReadReceipt is an inbound read acknowledgement, forwarded to the dedicated
// handler goroutine instead of being processed on the client's callback.
type ReadReceipt struct {
	Phone     string // sender's number, raw (normalized downstream)
	Timestamp time.Time
}

// Session owns the whatsmeow client lifecycle: the sqlite-backed device
// store, QR pairing when no session exists, and the inbound event stream.
type Session struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *logrus.Logger

	mu    sync.Mutex
	state State

	receipts  chan ReadReceipt
	onOnline  func()
	onOffline func(reason string)
}

// NewSession opens the device store at dbPath and builds the client. It does
// not connect; call Connect once handlers are wired.
func NewSession(ctx context.Context, dbPath string, logger *logrus.Logger) (*Session, error) {
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	s := &Session{
		client:    whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "ERROR", true)),
		container: container,
		logger:    logger,
		state:     StateDisconnected,
		receipts:  make(chan ReadReceipt, 64),
	}
	s.client.AddEventHandler(s.handleEvent)
	return s, nil
}

// OnTransition registers the online/offline callbacks. Must be called before
// Connect.
func (s *Session) OnTransition(online func(), offline func(reason string)) {
	s.onOnline = online
	s.onOffline = offline
}

// Receipts is the inbound read-receipt stream. The channel is never closed;
// consumers exit via their own context.
func (s *Session) Receipts() <-chan ReadReceipt {
	return s.receipts
}

// Connect establishes the WhatsApp connection. With no stored credentials it
// renders the pairing QR codes on stdout and waits for the scan in the
// background; with a stored session it resumes directly.
func (s *Session) Connect(ctx context.Context) error {
	if s.client.Store.ID == nil {
		// GetQRChannel must be requested before Connect.
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		// Set before Connect: a fast PairSuccess/Connected event must not be
		// overwritten backwards by this call.
		s.setState(StateAwaitingScan)
		if err := s.client.Connect(); err != nil {
			s.setState(StateDisconnected)
			return fmt.Errorf("failed to connect: %w", err)
		}
		s.logger.Info("No stored session. Scan the QR code with WhatsApp to pair.")

		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				case "success":
					s.logger.Info("QR pairing succeeded.")
				default:
					s.logger.Warnf("QR channel event: %s", evt.Event)
				}
			}
		}()
		return nil
	}

	s.setState(StateAuthenticated)
	if err := s.client.Connect(); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("failed to connect with stored session: %w", err)
	}
	return nil
}

// Disconnect tears the connection down without touching stored credentials.
func (s *Session) Disconnect() {
	s.client.Disconnect()
	s.setState(StateDisconnected)
}

// Reset logs the device out and deletes the stored session so the next
// Connect starts a fresh pairing.
func (s *Session) Reset(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Logout(ctx); err != nil {
			s.logger.Warnf("Logout failed (%v), deleting device store directly.", err)
			s.client.Disconnect()
			if err := s.container.DeleteDevice(ctx, s.client.Store); err != nil {
				return fmt.Errorf("failed to delete device store: %w", err)
			}
		}
	} else {
		s.client.Disconnect()
	}
	s.setState(StateDisconnected)
	s.logger.Info("Session reset; re-pairing required on next connect.")
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the session can send messages.
func (s *Session) Ready() bool {
	return s.State() == StateReady && s.client.IsConnected()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		s.setState(StateAuthenticated)
		s.logger.Infof("Paired as %s.", v.ID)

	case *events.Connected:
		s.setState(StateReady)
		if s.onOnline != nil {
			s.onOnline()
		}

	case *events.Disconnected:
		s.setState(StateDisconnected)
		if s.onOffline != nil {
			s.onOffline("connection lost")
		}

	case *events.LoggedOut:
		s.setState(StateDisconnected)
		if s.onOffline != nil {
			s.onOffline(fmt.Sprintf("logged out (%s)", v.Reason))
		}

	case *events.Receipt:
		if v.Type != types.ReceiptTypeRead {
			return
		}
		r := ReadReceipt{Phone: v.MessageSource.Sender.User, Timestamp: v.Timestamp}
		select {
		case s.receipts <- r:
		default:
			s.logger.Warn("Receipt channel full, dropping read receipt.")
		}
	}
}
