package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclaw/wa-bridge/internal/conf"
	"github.com/openclaw/wa-bridge/internal/domain"
)

// Payload is the JSON envelope POSTed to the hook sink. timeoutSeconds is
// interpreted by the sink, not by the bridge.
type Payload struct {
	Message        string `json:"message"`
	Name           string `json:"name"`
	SessionKey     string `json:"sessionKey"`
	WakeMode       string `json:"wakeMode"`
	Deliver        bool   `json:"deliver"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// Notifier delivers hook payloads fire-and-forget: errors are logged, never
// retried, never surfaced to the ingestion pipeline.
type Notifier struct {
	rules  *conf.Rules
	port   int
	client *http.Client
	disp   *Dispatcher
	log    zerolog.Logger
}

// NewNotifier wires a notifier onto a dispatcher.
func NewNotifier(rules *conf.Rules, port int, disp *Dispatcher, log zerolog.Logger) *Notifier {
	return &Notifier{
		rules:  rules,
		port:   port,
		client: &http.Client{Timeout: 30 * time.Second},
		disp:   disp,
		log:    log,
	}
}

// Notify formats the event and queues the POST to the hook sink.
func (n *Notifier) Notify(event domain.Event) {
	payload := Payload{
		Message:        BuildMessage(event, n.rules, n.port),
		Name:           "WhatsApp",
		SessionKey:     "hook:wa:" + event.From,
		WakeMode:       "now",
		Deliver:        false,
		TimeoutSeconds: 120,
	}

	sender := event.From
	if event.PushName != nil && *event.PushName != "" {
		sender = *event.PushName
	}
	preview := truncateBytes(event.Body, 60)

	n.disp.Submit("hook-sink", func() {
		if err := PostJSON(n.client, n.rules.OpenClaw.HookURL, n.rules.OpenClaw.HookToken, payload); err != nil {
			n.log.Error().Err(err).Msg("hook delivery failed")
			return
		}
		n.log.Info().Str("sender", sender).Str("body", preview).Msg("hook sent")
	})
}

// PostJSON delivers one JSON body. The response body is discarded; a non-2xx
// status is an error so callers can log it.
func PostJSON(client *http.Client, url, bearer string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
