package whatsapp

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-rsvp/internal/notify"
)

type Config struct {
	DataDir string
	// CountryCode replaces the leading 0 of national numbers.
	CountryCode string
}

// messenger is the part of the whatsmeow client used for delivery.
type messenger interface {
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Service sends confirmation notices as WhatsApp messages. The device tokens
// it receives are phone numbers.
type Service struct {
	client *whatsmeow.Client
	sender messenger
	cfg    *Config
	log    zerolog.Logger
	qrOut  io.Writer
}

var _ notify.Notifier = (*Service)(nil)

// NewService creates a new WhatsApp service
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger, qrOut io.Writer) (*Service, error) {
	// Use nil logger - sqlstore will use a no-op logger by default
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client: client,
		sender: client,
		cfg:    cfg,
		log:    log.With().Str("component", "WhatsApp").Logger(),
		qrOut:  qrOut,
	}
	client.AddEventHandler(service.eventHandler)

	return service, nil
}

// NormalizePhoneNumber strips formatting and converts a national number
// (10 digits with a leading 0) to international form using countryCode.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	phoneNumber = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phoneNumber)

	if countryCode == "" {
		return phoneNumber
	}
	if strings.HasPrefix(phoneNumber, "0") && len(phoneNumber) == 10 {
		phoneNumber = countryCode + phoneNumber[1:]
	}
	// country code followed by the national trunk prefix
	if strings.HasPrefix(phoneNumber, countryCode+"0") {
		phoneNumber = countryCode + phoneNumber[len(countryCode)+1:]
	}
	return phoneNumber
}

// Connect connects to WhatsApp, printing a pairing QR code when the device is new.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(s.qrOut, "QR Code: %s\n", evt.Code)
			continue
		}
		fmt.Fprintln(s.qrOut, "\n"+q.ToSmallString(false))
		fmt.Fprintln(s.qrOut, "Scan the QR code above in WhatsApp > Settings > Linked Devices > Link a Device")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	if s.client != nil {
		s.client.Disconnect()
	}
}

// SendMulticast verifies all numbers in one lookup, then messages each
// registered number. Numbers without WhatsApp fail permanently; a failed send
// to a registered number is transient.
func (s *Service) SendMulticast(ctx context.Context, tokens []string, msg notify.Message) ([]notify.Result, error) {
	phones := make([]string, len(tokens))
	for i, t := range tokens {
		phones[i] = NormalizePhoneNumber(t, s.cfg.CountryCode)
	}

	resp, err := s.sender.IsOnWhatsApp(ctx, phones)
	if err != nil {
		return nil, fmt.Errorf("failed to verify numbers on WhatsApp: %w", err)
	}
	registered := make(map[string]types.JID, len(resp))
	for _, r := range resp {
		if r.IsIn {
			registered[strings.TrimPrefix(r.Query, "+")] = r.JID
		}
	}

	text := fmt.Sprintf("*%s*\n\n%s", msg.Title, msg.Body)
	results := make([]notify.Result, len(tokens))
	for i, phone := range phones {
		results[i].Token = tokens[i]

		jid, ok := registered[phone]
		if !ok {
			results[i].Err = fmt.Errorf("number %s is not registered on WhatsApp", phone)
			results[i].Permanent = true
			continue
		}
		sent, err := s.sender.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results[i].Err = fmt.Errorf("failed to send message to %s: %w", jid, err)
			continue
		}
		s.log.Debug().Str("jid", jid.String()).Str("id", string(sent.ID)).Msg("Message sent")
	}
	return results, nil
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}
