package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pumpguard-dev/pumpguard/internal/metrics"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
)

const (
	historySoftCap   = 1000
	historyTruncateTo = 500
	busCapacity      = 1000
)

// WebhookConfig configures the optional chat webhook sink, per spec.md §4.3
// and §6 ("{base}/bot{token}/sendMessage").
type WebhookConfig struct {
	Base   string
	Token  string
	ChatID string
}

func (w WebhookConfig) enabled() bool {
	return w.Token != "" && w.ChatID != ""
}

// NATSConfig configures the optional secondary alert sink: publishing every
// alert as JSON onto a NATS subject for external consumers, independent of
// the webhook. Grounded on go-server/pkg/nats/client.go, publish side only.
type NATSConfig struct {
	URL     string
	Subject string
}

func (n NATSConfig) enabled() bool { return n.URL != "" }

// Bus is C3: a bounded-history, multi-subscriber alert broadcaster with
// optional webhook and NATS fan-out. Rate limiting is deliberately not
// implemented here — spec.md §4.3 makes it the producer's responsibility
// (C5 enforces its own per-minute cap).
type Bus struct {
	mu      sync.Mutex
	history []Alert // front = newest

	nextID  atomic.Int64
	bcast   *stream.Broadcast[Alert]

	webhook    WebhookConfig
	natsConfig NATSConfig
	natsConn   *nats.Conn

	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Registry
}

// New constructs the alert bus. If natsCfg is enabled, a best-effort
// connection is attempted at construction time; failure to connect is
// logged and the NATS sink is simply disabled, matching the webhook's
// "failure is logged and swallowed" posture (spec.md §4.3).
func New(webhook WebhookConfig, natsCfg NATSConfig, logger zerolog.Logger, reg *metrics.Registry) *Bus {
	b := &Bus{
		bcast:      stream.NewBroadcast[Alert](busCapacity),
		webhook:    webhook,
		natsConfig: natsCfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger.With().Str("component", "alert_bus").Logger(),
		metrics:    reg,
	}
	b.nextID.Store(0)

	if natsCfg.enabled() {
		conn, err := nats.Connect(natsCfg.URL)
		if err != nil {
			b.logger.Warn().Err(err).Str("url", natsCfg.URL).Msg("failed to connect to NATS, alert publishing to NATS disabled")
		} else {
			b.natsConn = conn
		}
	}

	b.bcast.OnLag(func(subscriberID int, skipped uint64) {
		b.metrics.BroadcastLag.WithLabelValues("alerts").Inc()
		b.logger.Warn().Int("subscriber", subscriberID).Uint64("skipped", skipped).Msg("alert subscriber lagging")
	})

	return b
}

// Send assigns a monotonic id (atomic counter from 1, spec.md §4.3),
// stamps the timestamp, pushes to history, broadcasts to subscribers, and
// fires the optional webhook/NATS sinks.
func (b *Bus) Send(ctx context.Context, typ Type, title, message string, data map[string]any) Alert {
	alert := Alert{
		ID:        b.nextID.Add(1),
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.history = append([]Alert{alert}, b.history...)
	if len(b.history) > historySoftCap {
		b.history = b.history[:historyTruncateTo]
	}
	b.mu.Unlock()

	b.bcast.Publish(alert)

	if b.webhook.enabled() {
		go b.sendWebhook(ctx, alert)
	}
	if b.natsConn != nil {
		go b.publishNATS(alert)
	}

	return alert
}

func (b *Bus) sendWebhook(ctx context.Context, alert Alert) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", b.webhook.Base, b.webhook.Token)
	payload := map[string]any{
		"chat_id":                  b.webhook.ChatID,
		"text":                     fmt.Sprintf("%s *%s*\n%s", emoji(alert.Type), alert.Title, alert.Message),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Warn().Err(err).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b.logger.Warn().Int("status", resp.StatusCode).Msg("webhook returned non-2xx")
	}
}

func (b *Bus) publishNATS(alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal alert for NATS")
		return
	}
	if err := b.natsConn.Publish(b.natsConfig.Subject, payload); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish alert to NATS")
	}
}

// Subscribe returns a channel of Alert/stream.Lag values.
func (b *Bus) Subscribe() (<-chan any, int) { return b.bcast.Subscribe() }

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id int) { b.bcast.Unsubscribe(id) }

// Recent returns up to n of the most recently sent alerts, newest first.
func (b *Bus) Recent(n int) []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Alert, n)
	copy(out, b.history[:n])
	return out
}

// Close releases the optional NATS connection.
func (b *Bus) Close() {
	if b.natsConn != nil {
		b.natsConn.Close()
	}
}

// NewTokenAlert builds the human-readable new-token alert, per
// pumpguard-rs/src/utils/alerts.rs::alert_new_token.
func NewTokenAlert(mint, name, symbol, creator string, initialLiquidity float64) (Type, string, string, map[string]any) {
	title := fmt.Sprintf("New Token: %s (%s)", name, symbol)
	message := fmt.Sprintf("New token detected: *%s* (%s)\nCreator: `%s`\nInitial liquidity: %.2f SOL\nMint: `%s`",
		name, symbol, creator, initialLiquidity, mint)
	data := map[string]any{
		"mint": mint, "name": name, "symbol": symbol, "creator": creator, "initial_liquidity": initialLiquidity,
	}
	return TypeNewToken, title, message, data
}

// RugPullAlert builds a rug-pull alert of the given severity, per
// pumpguard-rs/src/utils/alerts.rs::alert_rug_pull.
func RugPullAlert(mint, name, reason string, severity Severity, suspicionScore int) (Type, string, string, map[string]any) {
	title := fmt.Sprintf("Rug Pull Detected: %s", name)
	message := fmt.Sprintf("🚨 RUG PULL ALERT 🚨\nToken: *%s*\nMint: `%s`\nReason: %s\nSuspicion score: %d",
		name, mint, reason, suspicionScore)
	data := map[string]any{
		"mint": mint, "name": name, "reason": reason, "severity": severity, "suspicion_score": suspicionScore,
	}
	return TypeRug, title, message, data
}

// WhaleAlert builds a whale buy/sell alert, per
// pumpguard-rs/src/utils/alerts.rs::alert_whale.
func WhaleAlert(kind Type, wallet, mint string, amountSOL, totalVolume float64) (Type, string, string, map[string]any) {
	action := "bought"
	if kind == TypeWhaleSell {
		action = "sold"
	}
	title := fmt.Sprintf("Whale Activity: %s", chainShorten(wallet))
	message := fmt.Sprintf("🐋 Whale %s %.2f SOL of `%s`\nWallet: `%s`\nTotal tracked volume: %.2f SOL",
		action, amountSOL, mint, wallet, totalVolume)
	data := map[string]any{
		"wallet": wallet, "mint": mint, "amount_sol": amountSOL, "total_volume": totalVolume,
	}
	return kind, title, message, data
}

// SuspiciousAlert builds a suspicious-pattern alert for rules R1-R4 that
// don't reach rug severity, per
// pumpguard-rs/src/utils/alerts.rs::alert_suspicious.
func SuspiciousAlert(mint, name, rule, detail string, severity Severity, scoreDelta int) (Type, string, string, map[string]any) {
	title := fmt.Sprintf("Suspicious Activity: %s", name)
	message := fmt.Sprintf("⚠️ Suspicious activity on *%s* (`%s`)\nRule: %s\n%s", name, mint, rule, detail)
	data := map[string]any{
		"mint": mint, "name": name, "rule": rule, "severity": severity, "score_delta": scoreDelta,
	}
	return TypeSuspicious, title, message, data
}

// chainShorten avoids importing internal/chain here purely for a
// presentational helper; alerts keeps its own tiny copy rather than create
// a dependency edge the spec's ownership model (§3/§9) doesn't call for.
func chainShorten(address string) string {
	const k = 4
	if len(address) <= 2*k {
		return address
	}
	return address[:k] + "…" + address[len(address)-k:]
}
