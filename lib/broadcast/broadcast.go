// Package broadcast delivers web push notifications to stored subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/metrics"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/lib/subscribers"
	"github.com/spasibg/spasi-push/types"
)

// Push is one notification. City and Category narrow the audience.
type Push struct {
	Topic    string `json:"topic" form:"topic"`
	Title    string `json:"title" form:"title"`
	Body     string `json:"body" form:"body"`
	Icon     string `json:"icon" form:"icon"`
	Link     string `json:"link" form:"link"`
	City     string `json:"city" form:"city"`
	Category string `json:"category" form:"category"`
}

type Report struct {
	Sent    int `json:"sent"`
	Gone    int `json:"gone"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type SendFunc func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type Sender struct {
	Store    subscribers.Store
	Keys     pushsdk.VAPID
	Hostname string
	Send     SendFunc
	Log      logrus.FieldLogger
}

func NewSender(store subscribers.Store, keys pushsdk.VAPID, hostname string) *Sender {
	return &Sender{
		Store:    store,
		Keys:     keys,
		Hostname: hostname,
		Send:     webpush.SendNotification,
		Log:      logrus.StandardLogger(),
	}
}

var iconNames = []string{"signal", "danger", "witness", "volunteer", "success", "fail"}

func (s *Sender) iconURL(icon string) string {
	for _, i := range iconNames {
		if strings.HasPrefix(strings.ToLower(icon), i) {
			return fmt.Sprintf("https://%s/static/%s.png", s.Hostname, i)
		}
	}
	return icon
}

func (s *Sender) payload(p Push) ([]byte, error) {
	body, err := json.Marshal(map[string]interface{}{
		"title": p.Title,
		"body":  p.Body,
		"icon":  s.iconURL(p.Icon),
		"badge": fmt.Sprintf("https://%s/static/badge-128.png", s.Hostname),
		"data": map[string]string{
			"url": p.Link,
		},
	})
	return body, errors.Wrap(err, "marshalling push payload")
}

// Deliver sends p to every matching subscriber. A failed delivery is
// counted and logged; it does not stop the others.
func (s *Sender) Deliver(ctx context.Context, p Push) (Report, error) {
	var report Report
	if !s.Keys.Configured() {
		return report, pushsdk.ErrUnsupported
	}

	subs, err := s.Store.List(ctx, subscribers.Filter{City: p.City, Category: p.Category})
	if err != nil {
		return report, errors.Wrap(err, "finding subscribers")
	}

	pushPayload, err := s.payload(p)
	if err != nil {
		return report, err
	}

	topic := p.Topic
	if topic == "" {
		topic = "spasi-broadcast"
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := s.Log.WithField("token", sub.PushToken)
		if !sub.CanReceive() {
			report.Skipped++
			continue
		}

		result := s.deliverOne(log, pushPayload, sub, topic)
		metrics.Deliveries.WithLabelValues(result).Inc()
		switch result {
		case "sent":
			report.Sent++
		case "gone":
			report.Gone++
		default:
			report.Failed++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"sent":    report.Sent,
		"gone":    report.Gone,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	}).Info("Broadcast delivered")
	return report, nil
}

func (s *Sender) deliverOne(log logrus.FieldLogger, pushPayload []byte, sub types.Subscriber, topic string) string {
	resp, err := s.Send(pushPayload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.Keys.Subscriber,
		Topic:           topic,
		VAPIDPublicKey:  s.Keys.PublicKey,
		VAPIDPrivateKey: s.Keys.PrivateKey,
		TTL:             3600,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		log.Error(errors.Wrap(err, "sending push notification"))
		return "error"
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// the record stays until an admin removes it
		log.Info("Subscriber no longer active")
		return "gone"
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "sent"
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Errorf("Got status code %d: %s", resp.StatusCode, string(respBody))
		return "error"
	}
}
