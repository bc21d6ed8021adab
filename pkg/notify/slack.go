package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/eubucco/slurm-pipeline/pkg/log"
	"github.com/eubucco/slurm-pipeline/pkg/metrics"
)

const (
	defaultBaseURL = "https://slack.com/api"

	// Slack truncates messages around 4000 characters.
	maxMessageLen = 4000
)

// apiResponse is the subset of a Slack Web API response we consume.
type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

// Slack posts pipeline notifications to a channel via the Slack Web
// API. A nil *Slack is safe to use; its methods drop the message.
type Slack struct {
	client     *resty.Client
	channel    string
	initialGap time.Duration
	maxElapsed time.Duration
}

type Option func(*Slack)

// WithBaseURL redirects API calls, used by tests.
func WithBaseURL(url string) Option {
	return func(s *Slack) {
		s.client.SetBaseURL(url)
	}
}

// WithRetryInterval tightens the retry cadence, used by tests.
func WithRetryInterval(initial, maxElapsed time.Duration) Option {
	return func(s *Slack) {
		s.initialGap = initial
		s.maxElapsed = maxElapsed
	}
}

// NewSlack creates a notifier for the given channel.
func NewSlack(channel, token string, opts ...Option) *Slack {
	s := &Slack{
		channel:    channel,
		initialGap: 500 * time.Millisecond,
		maxElapsed: 30 * time.Second,
	}
	s.client = resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(10 * time.Second).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts text to the configured channel, threaded under threadTS
// when given. Oversized texts are split into several messages; chunks
// after the first land in the thread of the first. Returns the ts and
// channel id of the first posted message.
func (s *Slack) Send(ctx context.Context, text, threadTS string) (string, string, error) {
	if s == nil {
		log.Debug("No notification hook configured, dropping message")
		return "", "", nil
	}

	var firstTS, firstChannel string
	parent := threadTS

	for i, chunk := range splitMessage(text) {
		body := map[string]any{
			"channel": s.channel,
			"text":    chunk,
		}
		if parent != "" {
			body["thread_ts"] = parent
		}

		resp, err := s.post(ctx, "/chat.postMessage", body)
		if err != nil {
			return firstTS, firstChannel, err
		}
		if i == 0 {
			firstTS, firstChannel = resp.TS, resp.Channel
			if parent == "" {
				parent = firstTS
			}
		}
	}
	return firstTS, firstChannel, nil
}

// Update rewrites a previously posted message in place. Chunks beyond
// the first do not fit the edited message and are appended below it.
func (s *Slack) Update(ctx context.Context, text, channel, ts string) error {
	if s == nil {
		log.Debug("No notification hook configured, dropping message")
		return nil
	}

	chunks := splitMessage(text)
	_, err := s.post(ctx, "/chat.update", map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    chunks[0],
	})
	if err != nil {
		return err
	}

	for _, chunk := range chunks[1:] {
		_, err := s.post(ctx, "/chat.postMessage", map[string]any{
			"channel":   channel,
			"text":      chunk,
			"thread_ts": ts,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// post fires one API call with exponential backoff on transport and
// HTTP-level failures. An ok:false API response is permanent; retrying
// an invalid_auth or channel_not_found can never succeed.
func (s *Slack) post(ctx context.Context, path string, body map[string]any) (*apiResponse, error) {
	var out apiResponse

	op := func() error {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post(path)

		if err != nil {
			return fmt.Errorf("failed to reach Slack: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("slack returned HTTP %d: %s", resp.StatusCode(), resp.String())
		}
		if !out.OK {
			return backoff.Permanent(fmt.Errorf("slack API error: %s", out.Error))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialGap
	b.MaxElapsedTime = s.maxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		metrics.NotifyErrorsTotal.Inc()
		return nil, err
	}
	return &out, nil
}

// splitMessage cuts text into chunks below the Slack message limit,
// breaking at line boundaries. A cut inside a ``` block closes the
// fence and reopens it in the next chunk so code formatting survives.
// Single lines beyond the limit are cut mid-line.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}

	// Leave room for a closing fence on every chunk.
	budget := maxMessageLen - len("\n```")

	var chunks []string
	var cur strings.Builder
	inFence := false

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunk := cur.String()
		cur.Reset()
		if inFence {
			chunk = strings.TrimRight(chunk, "\n") + "\n```"
			cur.WriteString("```\n")
		}
		chunks = append(chunks, chunk)
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if cur.Len()+len(line) > budget {
			flush()
		}
		// a single line beyond the limit is cut mid-line
		for cur.Len()+len(line) > budget {
			space := budget - cur.Len()
			cur.WriteString(line[:space])
			line = line[space:]
			flush()
		}
		cur.WriteString(line)
		if strings.Count(line, "```")%2 == 1 {
			inFence = !inFence
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
