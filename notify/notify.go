// Package notify sends web push notifications for social events: new
// followers, likes and comments.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"socialsync/models"
)

// SubscriptionStore persists push subscriptions.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub models.PushSubscription) error
	ForUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeleteEndpoint(ctx context.Context, endpoint string) error
}

type Config struct {
	PublicKey  string
	PrivateKey string
	Subscriber string // mailto: or https: contact for the push service
	TTL        int
}

// Message is the JSON payload shown by the service worker.
type Message struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

type Notifier struct {
	subs       SubscriptionStore
	cfg        Config
	httpClient webpush.HTTPClient
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// New returns a notifier. Without VAPID keys it accepts subscriptions but
// sends nothing.
func New(subs SubscriptionStore, cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:admin@socialsync.local"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}
	return &Notifier{
		subs:       subs,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (n *Notifier) Enabled() bool {
	return n.cfg.PublicKey != "" && n.cfg.PrivateKey != ""
}

func (n *Notifier) PublicKey() string { return n.cfg.PublicKey }

// Subscribe stores a browser subscription for userID.
func (n *Notifier) Subscribe(ctx context.Context, userID string, sub webpush.Subscription) error {
	return n.subs.Upsert(ctx, models.PushSubscription{UserID: userID, Sub: sub})
}

// Followed tells userID they have a new follower.
func (n *Notifier) Followed(userID, followerName string) {
	n.Notify(userID, Message{
		Title: "New follower",
		Body:  followerName + " started following you",
		Data:  map[string]any{"url": "/profile"},
	})
}

// Liked tells a post author someone liked their post.
func (n *Notifier) Liked(authorID, likerName, postID string) {
	n.Notify(authorID, Message{
		Title: "New like",
		Body:  likerName + " liked your post",
		Data:  map[string]any{"url": "/posts/" + postID},
	})
}

// Commented tells a post author someone commented on their post.
func (n *Notifier) Commented(authorID, commenterName, postID, text string) {
	if len(text) > 100 {
		text = text[:100] + "..."
	}
	n.Notify(authorID, Message{
		Title: commenterName + " commented on your post",
		Body:  text,
		Data:  map[string]any{"url": "/posts/" + postID},
	})
}

// Notify sends msg to every subscription of userID in the background.
func (n *Notifier) Notify(userID string, msg Message) {
	if !n.Enabled() || userID == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("panic in push notification", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n.send(ctx, userID, msg)
	}()
}

// Wait blocks until in-flight notifications are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, userID string, msg Message) {
	subs, err := n.subs.ForUser(ctx, userID)
	if err != nil {
		n.logger.Warn("failed to load push subscriptions", zap.String("user", userID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	if msg.Data == nil {
		msg.Data = map[string]any{}
	}
	msg.Data["timestamp"] = time.Now().Unix()
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("failed to marshal push payload", zap.Error(err))
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub.Sub, &webpush.Options{
			HTTPClient:      n.httpClient,
			Subscriber:      n.cfg.Subscriber,
			VAPIDPublicKey:  n.cfg.PublicKey,
			VAPIDPrivateKey: n.cfg.PrivateKey,
			TTL:             n.cfg.TTL,
		})
		if err != nil {
			n.logger.Warn("push send failed", zap.String("user", userID), zap.Error(err))
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			n.logger.Info("push subscription expired, deleting", zap.String("user", userID))
			if err := n.subs.DeleteEndpoint(ctx, sub.Sub.Endpoint); err != nil {
				n.logger.Warn("failed to delete expired subscription", zap.Error(err))
			}
		case resp.StatusCode >= 300:
			n.logger.Warn("push service rejected notification",
				zap.String("user", userID),
				zap.Int("status", resp.StatusCode),
			)
		default:
			n.logger.Debug("push notification sent", zap.String("user", userID))
		}
	}
}

// GenerateVAPIDKeys returns a new private and public key pair.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

// MemorySubscriptions is a SubscriptionStore for runs without a database.
type MemorySubscriptions struct {
	mu   sync.Mutex
	subs map[string]models.PushSubscription // keyed by endpoint
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[string]models.PushSubscription)}
}

func (m *MemorySubscriptions) Upsert(_ context.Context, sub models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Sub.Endpoint] = sub
	return nil
}

func (m *MemorySubscriptions) ForUser(_ context.Context, userID string) ([]models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PushSubscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (m *MemorySubscriptions) DeleteEndpoint(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, endpoint)
	return nil
}
