package livechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livechat-tender/telemetry"
)

const (
	// DefaultBaseURL is the platform origin used when Options.BaseURL is empty.
	DefaultBaseURL = "https://www.youtube.com"
	// DefaultInterval is the poll interval used when Options.Interval is zero.
	DefaultInterval = time.Second

	offlineMarker = "LIVE_STREAM_OFFLINE"
	chatPath      = "/youtubei/v1/live_chat/get_live_chat"
	tracerName    = "livechat"
)

// State is the lifecycle state of a LiveChat.
type State int

const (
	// StateIdle: constructed, no session yet. A failed Start stays Idle.
	StateIdle State = iota
	// StateRunning: session tokens held and the poll timer active.
	StateRunning
	// StateStopped is terminal; a new session needs a new LiveChat.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LiveLookup finds the current live video of a channel through another
// source than the channel page (e.g. the YouTube Data API).
type LiveLookup interface {
	LiveVideoID(ctx context.Context, channelID string) (string, error)
}

// Options configures a LiveChat. Exactly one of ChannelID and LiveID must be set.
type Options struct {
	ChannelID string
	LiveID    string

	Client    HTTPClient
	Interval  time.Duration
	BaseURL   string
	Parser    Parser
	Extractor TokenExtractor
	Lookup    LiveLookup
	Logger    *slog.Logger
	// Now seeds the watermark; defaults to time.Now.
	Now func() time.Time
}

// LiveChat polls the chat of one live broadcast.
type LiveChat struct {
	channelID string
	liveID    string
	baseURL   string
	interval  time.Duration
	client    HTTPClient
	parser    Parser
	extractor TokenExtractor
	lookup    LiveLookup
	log       *slog.Logger

	mu          sync.Mutex
	state       State
	starting    bool
	listeners   []Listener
	broadcastID string
	session     Session
	watermark   time.Time
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New validates opts and returns an idle LiveChat.
func New(opts Options) (*LiveChat, error) {
	if (opts.ChannelID == "") == (opts.LiveID == "") {
		return nil, ErrInvalidArgument
	}
	lc := &LiveChat{
		channelID: opts.ChannelID,
		liveID:    opts.LiveID,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		interval:  opts.Interval,
		client:    opts.Client,
		parser:    opts.Parser,
		extractor: opts.Extractor,
		lookup:    opts.Lookup,
		log:       opts.Logger,
	}
	if lc.baseURL == "" {
		lc.baseURL = DefaultBaseURL
	}
	if lc.interval <= 0 {
		lc.interval = DefaultInterval
	}
	if lc.client == nil {
		lc.client = http.DefaultClient
	}
	if lc.parser == nil {
		lc.parser = DefaultParser{}
	}
	if lc.extractor == nil {
		lc.extractor = NewMarkerExtractor(nil)
	}
	if lc.log == nil {
		lc.log = slog.Default()
	}
	target := opts.LiveID
	if target == "" {
		target = opts.ChannelID
	}
	lc.log = lc.log.With(slog.String("component", "livechat"), slog.String("target", target))
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lc.watermark = now()
	return lc, nil
}

// Subscribe registers l for every subsequent event.
func (lc *LiveChat) Subscribe(l Listener) {
	lc.mu.Lock()
	lc.listeners = append(lc.listeners, l)
	lc.mu.Unlock()
}

// State returns the current lifecycle state.
func (lc *LiveChat) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// BroadcastID returns the resolved broadcast id, or "" before a successful Start.
func (lc *LiveChat) BroadcastID() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.broadcastID
}

// Watermark returns the timestamp of the most recently emitted comment (or the construction time).
func (lc *LiveChat) Watermark() time.Time {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.watermark
}

// Start resolves the broadcast, extracts the session tokens and starts
// polling. It returns false when any step fails; the failure has then been
// emitted as a Failed event. Cancelling ctx later stops the session.
func (lc *LiveChat) Start(ctx context.Context) bool {
	lc.mu.Lock()
	if lc.state != StateIdle || lc.starting {
		lc.mu.Unlock()
		lc.log.Warn("start ignored", slog.Any("err", ErrNotIdle))
		return false
	}
	lc.starting = true
	lc.mu.Unlock()
	defer func() {
		lc.mu.Lock()
		lc.starting = false
		lc.mu.Unlock()
	}()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "livechat.start",
		attribute.String("channel_id", lc.channelID),
		attribute.String("live_id", lc.liveID),
	)
	defer span.End()

	fail := func(err error) bool {
		telemetry.RecordError(span, err)
		telemetry.IncStartFailure(startFailureReason(err))
		lc.log.Info("start failed", slog.Any("err", err))
		lc.emit(Failed{Err: err})
		return false
	}

	id, page, err := lc.resolve(ctx)
	if err != nil {
		return fail(err)
	}
	sess, err := extractSession(lc.extractor, id, page)
	if err != nil {
		return fail(err)
	}

	stop := make(chan struct{})
	lc.mu.Lock()
	lc.broadcastID = id
	lc.session = sess
	lc.state = StateRunning
	lc.stop = stop
	lc.mu.Unlock()

	telemetry.SetSpanSuccess(span)
	telemetry.IncSessionStarted()
	lc.log.Info("live chat started", slog.String("broadcast_id", id), slog.Duration("interval", lc.interval))
	lc.emit(Started{BroadcastID: id})

	lc.wg.Add(1)
	go lc.loop(ctx, stop)
	return true
}

// Stop cancels the poll timer and emits Ended with reason. It is a no-op
// unless the session is running, so at most one Ended is ever emitted.
func (lc *LiveChat) Stop(reason string) {
	lc.mu.Lock()
	if lc.state != StateRunning {
		lc.mu.Unlock()
		return
	}
	lc.state = StateStopped
	close(lc.stop)
	id := lc.broadcastID
	lc.mu.Unlock()

	telemetry.IncSessionEnded()
	lc.log.Info("live chat stopped", slog.String("broadcast_id", id), slog.String("reason", reason))
	lc.emit(Ended{Reason: reason})
}

// Wait blocks until the poll goroutine has exited. It returns at once if the
// session never started.
func (lc *LiveChat) Wait() {
	lc.wg.Wait()
}

func (lc *LiveChat) running() bool {
	return lc.State() == StateRunning
}

func (lc *LiveChat) emit(ev Event) {
	lc.mu.Lock()
	ls := append([]Listener(nil), lc.listeners...)
	lc.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// loop drives one poll per tick. time.Ticker drops ticks while a poll is in
// flight, so polls never overlap.
func (lc *LiveChat) loop(ctx context.Context, stop <-chan struct{}) {
	defer lc.wg.Done()
	t := time.NewTicker(lc.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			lc.Stop(ctx.Err().Error())
			return
		case <-t.C:
			lc.pollOnce(ctx)
			if !lc.running() {
				return
			}
		}
	}
}

// resolve establishes the broadcast id and returns it with its watch page.
func (lc *LiveChat) resolve(ctx context.Context) (string, string, error) {
	id := lc.liveID
	var page string
	var err error
	if id != "" {
		page, err = lc.getPage(ctx, "/watch?v="+url.QueryEscape(id))
		if err != nil {
			return "", "", err
		}
		if strings.Contains(page, offlineMarker) {
			return "", "", ErrStreamOffline
		}
	} else {
		page, err = lc.getPage(ctx, "/channel/"+url.PathEscape(lc.channelID)+"/live")
		if err != nil {
			return "", "", err
		}
		if strings.Contains(page, offlineMarker) {
			return "", "", ErrStreamOffline
		}
		id = broadcastIDFromChannelPage(page)
		if id == "" && lc.lookup != nil {
			id, page, err = lc.resolveWithLookup(ctx)
			if err != nil {
				return "", "", err
			}
		}
	}
	if id == "" {
		return "", "", ErrStreamNotFound
	}
	return id, page, nil
}

func (lc *LiveChat) resolveWithLookup(ctx context.Context) (string, string, error) {
	id, err := lc.lookup.LiveVideoID(ctx, lc.channelID)
	if err != nil || id == "" {
		lc.log.Debug("live lookup found nothing", slog.Any("err", err))
		return "", "", nil
	}
	page, err := lc.getPage(ctx, "/watch?v="+url.QueryEscape(id))
	if err != nil {
		return "", "", err
	}
	if strings.Contains(page, offlineMarker) {
		return "", "", ErrStreamOffline
	}
	return id, page, nil
}

func (lc *LiveChat) getPage(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lc.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := lc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			lc.log.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{URL: lc.baseURL + path, Code: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// pollOnce performs one fetch-filter-emit cycle.
func (lc *LiveChat) pollOnce(ctx context.Context) {
	lc.mu.Lock()
	if lc.state != StateRunning {
		lc.mu.Unlock()
		return
	}
	sess := lc.session
	wm := lc.watermark
	lc.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "livechat.poll", attribute.String("broadcast_id", sess.BroadcastID))
	defer span.End()

	begin := time.Now()
	res, err := lc.fetchChat(ctx, sess)
	if err == nil {
		err = validateResponse(res)
	}
	if err != nil {
		class := ClassifyPollError(err)
		telemetry.ObservePoll(time.Since(begin), class.String())
		telemetry.RecordError(span, err)
		if ctx.Err() != nil || !lc.running() {
			return
		}
		lc.log.Warn("poll failed", slog.String("broadcast_id", sess.BroadcastID), slog.String("class", class.String()), slog.Any("err", err))
		lc.emit(Failed{Err: &PollError{Err: err}})
		return
	}
	telemetry.ObservePoll(time.Since(begin), "ok")

	if res.ContinuationContents.MessageRenderer != nil {
		lc.Stop(ReasonStreamFinished)
		return
	}

	cont := res.ContinuationContents.LiveChatContinuation
	items := SelectNew(cont.Actions, wm, lc.parser)

	lc.mu.Lock()
	if next := cont.next(); next != "" {
		lc.session.Continuation = next
	}
	if len(items) > 0 {
		lc.watermark = items[len(items)-1].Timestamp
	}
	lc.mu.Unlock()

	emitted := 0
	for _, c := range items {
		if !lc.running() {
			break
		}
		lc.emit(CommentEvent{Comment: c})
		emitted++
	}
	telemetry.AddComments(emitted)
	span.SetAttributes(attribute.Int("comments", emitted))
	telemetry.SetSpanSuccess(span)
}

func (lc *LiveChat) fetchChat(ctx context.Context, s Session) (*getLiveChatResponse, error) {
	body, err := json.Marshal(getLiveChatRequest{
		Context: requestContext{Client: requestClient{
			ClientName:    s.ClientName,
			ClientVersion: s.ClientVersion,
		}},
		Continuation: s.Continuation,
	})
	if err != nil {
		return nil, err
	}
	u := lc.baseURL + chatPath + "?key=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	resp, err := lc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			lc.log.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: lc.baseURL + chatPath, Code: resp.StatusCode}
	}
	var out getLiveChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode live chat response: %w", err)
	}
	return &out, nil
}

var errMalformedResponse = errors.New("decode live chat response: no continuation contents")

func validateResponse(res *getLiveChatResponse) error {
	cc := res.ContinuationContents
	if cc == nil || (cc.MessageRenderer == nil && cc.LiveChatContinuation == nil) {
		return errMalformedResponse
	}
	return nil
}

// SelectNew maps one action batch to the comments that should be emitted.
// The trailing element of the batch is a housekeeping action and is always
// dropped. Actions without a renderer, and renderers whose timestamp is not
// strictly after watermark, are skipped. Batch order is preserved.
func SelectNew(actions []Action, watermark time.Time, p Parser) []Comment {
	if len(actions) == 0 {
		return nil
	}
	var out []Comment
	for _, a := range actions[:len(actions)-1] {
		r := p.Renderer(a)
		if r == nil {
			continue
		}
		if !UsecToTime(r.TimestampUsec).After(watermark) {
			continue
		}
		out = append(out, p.Comment(a))
	}
	return out
}

func startFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrStreamOffline):
		return "offline"
	case errors.Is(err, ErrStreamNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExtraction):
		return "extraction"
	default:
		return "transport"
	}
}
