// Package ingest consumes inbound message events from the transport,
// filters and enriches them, persists them to the pull queue, and fans out
// to the hook sink and per-contact monitors.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclaw/wa-bridge/internal/conf"
	"github.com/openclaw/wa-bridge/internal/domain"
	"github.com/openclaw/wa-bridge/internal/hook"
	"github.com/openclaw/wa-bridge/internal/monitor"
	"github.com/openclaw/wa-bridge/internal/queue"
	"github.com/openclaw/wa-bridge/internal/transport"
)

// Pipeline processes one inbound message at a time, in arrival order.
type Pipeline struct {
	rules    *conf.Rules
	queue    *queue.Queue
	monitors *monitor.Registry
	client   transport.Client
	notifier *hook.Notifier
	disp     *hook.Dispatcher
	logsDir  string
	httpc    *http.Client
	log      zerolog.Logger
}

// New builds the pipeline and ensures the monitor log directory exists.
func New(
	rules *conf.Rules,
	q *queue.Queue,
	monitors *monitor.Registry,
	client transport.Client,
	notifier *hook.Notifier,
	disp *hook.Dispatcher,
	logsDir string,
	log zerolog.Logger,
) (*Pipeline, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	return &Pipeline{
		rules:    rules,
		queue:    q,
		monitors: monitors,
		client:   client,
		notifier: notifier,
		disp:     disp,
		logsDir:  logsDir,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}, nil
}

// Handle runs the full filter → enrich → persist → fan-out sequence for one
// message. Sink failures are logged and never stop later stages.
func (p *Pipeline) Handle(msg *domain.IncomingMessage) {
	if msg == nil || msg.From == "" {
		return
	}
	if msg.From == domain.StatusBroadcast || msg.FromMe {
		return
	}
	if p.rules.Ignored(msg.From) {
		return
	}

	event := p.enrich(context.Background(), msg)

	if err := p.queue.Push(event); err != nil {
		p.log.Error().Err(err).Str("from", event.From).Msg("queue append failed")
	}
	p.log.Info().
		Str("from", event.From).
		Str("body", preview(event.Body)).
		Msg("message ingested")

	p.notifier.Notify(event)

	if spec, ok := p.monitors.Get(event.From); ok {
		p.fanOut(event, spec)
	}
}

// enrich fetches chat and contact metadata. Either fetch may fail; the
// missing fields stay null.
func (p *Pipeline) enrich(ctx context.Context, msg *domain.IncomingMessage) domain.Event {
	var chatName *string
	isGroup := false
	if chat, err := p.client.GetChatByID(ctx, msg.From); err == nil && chat != nil {
		chatName = domain.StrPtr(chat.Name)
		isGroup = chat.IsGroup
	}

	pushName := msg.NotifyName
	if contact, err := p.client.GetContact(ctx, msg.From); err == nil && contact != nil && contact.PushName != "" {
		pushName = contact.PushName
	}

	return domain.Event{
		Timestamp: domain.Now(),
		From:      msg.From,
		PushName:  domain.StrPtr(pushName),
		ChatName:  chatName,
		Author:    msg.Author,
		Body:      msg.Body,
		Type:      msg.Type,
		HasMedia:  msg.HasMedia,
		IsGroup:   isGroup,
	}
}

func (p *Pipeline) fanOut(event domain.Event, spec domain.MonitorSpec) {
	if err := p.appendMonitorLog(event); err != nil {
		p.log.Error().Err(err).Str("from", event.From).Msg("monitor log append failed")
	}

	if spec.Webhook != nil && *spec.Webhook != "" {
		url := *spec.Webhook
		p.disp.Submit("monitor-webhook", func() {
			if err := hook.PostJSON(p.httpc, url, "", event); err != nil {
				p.log.Error().Err(err).Str("url", url).Msg("monitor webhook failed")
			}
		})
	}

	if spec.Script != nil && len(spec.Script.Keywords) > 0 && event.Body != "" {
		p.autoReply(event, spec.Script.Keywords)
	}
}

// autoReply sends at most one reply: the first keyword, in spec order, that
// appears case-insensitively in the body.
func (p *Pipeline) autoReply(event domain.Event, keywords domain.Keywords) {
	lower := strings.ToLower(event.Body)
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw.Match)) {
			continue
		}
		if _, err := p.client.SendMessage(context.Background(), event.From, kw.Reply); err != nil {
			p.log.Error().Err(err).Str("to", event.From).Msg("auto-reply failed")
		}
		return
	}
}

func (p *Pipeline) appendMonitorLog(event domain.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	path := filepath.Join(p.logsDir, domain.SanitizeID(event.From)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open monitor log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append monitor log: %w", err)
	}
	return nil
}

func preview(body string) string {
	const n = 80
	if len(body) <= n {
		return body
	}
	return body[:n]
}
