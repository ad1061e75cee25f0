// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"wedding-rsvp/internal/notify"
)

// maxBatch is the FCM limit on tokens per multicast request.
const maxBatch = 500

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Config struct {
	CredentialsFile string
	ProjectID       string
}

type Notifier struct {
	client    multicastSender
	permanent func(error) bool
	log       zerolog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier initialises a Firebase app from a service account file.
func NewNotifier(ctx context.Context, cfg Config, log zerolog.Logger) (*Notifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return newNotifier(client, log), nil
}

func newNotifier(client multicastSender, log zerolog.Logger) *Notifier {
	return &Notifier{
		client:    client,
		permanent: isPermanent,
		log:       log.With().Str("component", "FCM").Logger(),
	}
}

// isPermanent reports FCM errors that mean the token will never be deliverable.
// UNAVAILABLE, INTERNAL and QUOTA_EXCEEDED are retryable and do not count.
func isPermanent(err error) bool {
	return messaging.IsUnregistered(err) ||
		messaging.IsInvalidArgument(err) ||
		messaging.IsSenderIDMismatch(err)
}

func (n *Notifier) SendMulticast(ctx context.Context, tokens []string, msg notify.Message) ([]notify.Result, error) {
	results := make([]notify.Result, 0, len(tokens))
	for start := 0; start < len(tokens); start += maxBatch {
		end := min(start+maxBatch, len(tokens))
		batch := tokens[start:end]

		resp, err := n.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("fcm multicast: %w", err)
		}
		if len(resp.Responses) != len(batch) {
			return nil, fmt.Errorf("fcm multicast: got %d responses for %d tokens", len(resp.Responses), len(batch))
		}

		for i, r := range resp.Responses {
			res := notify.Result{Token: batch[i]}
			if !r.Success {
				res.Err = r.Error
				if res.Err == nil {
					res.Err = fmt.Errorf("fcm reported failure without an error")
				}
				res.Permanent = n.permanent(res.Err)
			}
			results = append(results, res)
		}
		n.log.Debug().
			Int("success", resp.SuccessCount).
			Int("failure", resp.FailureCount).
			Msg("Multicast batch sent")
	}
	return results, nil
}
