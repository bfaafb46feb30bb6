package push

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
)

// FCM allows at most 500 tokens per multicast.
const fcmMulticastLimit = 500

const fcmBodyMax = 240

// Messenger is the subset of the Firebase messaging client used here.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM sends reply events to a topic and to registered staff devices.
type FCM struct {
	client Messenger
	topic  string
	tokens repository.DeviceTokenStore
	log    *slog.Logger
}

// NewFCM creates the Firebase client from a service account file. tokens may
// be nil when only topic delivery is wanted.
func NewFCM(ctx context.Context, cfg config.FCMConfig, tokens repository.DeviceTokenStore, log *slog.Logger) (*FCM, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	if !cfg.DeviceTokens {
		tokens = nil
	}
	return NewFCMWithClient(client, cfg.Topic, tokens, log), nil
}

// NewFCMWithClient builds the channel around an existing client.
func NewFCMWithClient(client Messenger, topic string, tokens repository.DeviceTokenStore, log *slog.Logger) *FCM {
	return &FCM{client: client, topic: topic, tokens: tokens, log: log}
}

func (f *FCM) Name() string { return "fcm" }

func (f *FCM) Push(ctx context.Context, ev Event) error {
	notification := &messaging.Notification{
		Title: title(ev),
		Body:  truncate(ev.RawMessage, fcmBodyMax),
	}
	data := fcmData(ev)

	if f.topic != "" {
		_, err := f.client.Send(ctx, &messaging.Message{
			Topic:        f.topic,
			Notification: notification,
			Data:         data,
			Android:      &messaging.AndroidConfig{Priority: "high"},
		})
		if err != nil {
			return fmt.Errorf("send to topic %s: %w", f.topic, err)
		}
	}

	if f.tokens == nil {
		return nil
	}
	tokens, err := f.tokens.ListDeviceTokens(ctx)
	if err != nil {
		return fmt.Errorf("list device tokens: %w", err)
	}

	var stale []string
	failed := 0
	for start := 0; start < len(tokens); start += fcmMulticastLimit {
		end := min(start+fcmMulticastLimit, len(tokens))
		chunk := tokens[start:end]
		resp, err := f.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       chunk,
			Notification: notification,
			Data:         data,
			Android:      &messaging.AndroidConfig{Priority: "high"},
		})
		if err != nil {
			return fmt.Errorf("multicast: %w", err)
		}
		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			if messaging.IsRegistrationTokenNotRegistered(r.Error) {
				stale = append(stale, chunk[i])
				continue
			}
			failed++
		}
	}

	if len(stale) > 0 {
		if err := f.tokens.DeleteDeviceTokens(ctx, stale); err != nil {
			f.log.Warn("failed to prune device tokens", "count", len(stale), "error", err)
		} else {
			f.log.Info("pruned unregistered device tokens", "count", len(stale))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d device deliveries failed", failed, len(tokens))
	}
	return nil
}

func fcmData(ev Event) map[string]string {
	data := map[string]string{
		"event":    ev.Tag,
		"by_staff": strconv.FormatBool(ev.ByStaff),
	}
	if p := ev.Payload; p != nil {
		data["ticket_id"] = strconv.FormatInt(p.ID, 10)
		data["trackid"] = p.TrackID
		data["subject"] = p.Subject
		data["name"] = p.Name
		data["status"] = strconv.Itoa(int(p.Status))
		data["priority"] = strconv.Itoa(p.Priority)
		data["owner"] = strconv.FormatInt(p.Owner, 10)
		for k, v := range p.CustomFields {
			data[k] = v
		}
	}
	return data
}
