// Package moderation runs text through a keyword dictionary, decides what to
// do with the result, and records the outcome.
package moderation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mackeh/aegismask/internal/audit"
	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/notifications"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/security/redactor"
	"github.com/mackeh/aegismask/internal/telemetry"
	"github.com/mackeh/aegismask/internal/wordlist"
)

var (
	// ErrUnknownList is returned for a list name that is not loaded.
	ErrUnknownList = errors.New("unknown list")
	// ErrNoDictionary is returned when a request names no list, carries no
	// keywords and there is no default list.
	ErrNoDictionary = errors.New("no list or keywords given and no default list configured")
)

// Request is one text to moderate. A non-nil Keywords slice takes
// precedence over List, even when empty; with neither, the default list is
// used. Nil option overrides fall back
// to the service defaults.
type Request struct {
	ID               string
	Text             string
	List             string
	Keywords         []string
	IgnoreWhitespace *bool
	CaseInsensitive  *bool
	Actor            string
}

// Verdict is the outcome of Moderate.
type Verdict struct {
	ID       string          `json:"id"`
	Result   string          `json:"result"`
	Keywords []string        `json:"keywords"`
	Decision policy.Decision `json:"decision"`
	List     string          `json:"list,omitempty"`
	Duration time.Duration   `json:"-"`
}

// ListInfo describes a loaded list.
type ListInfo struct {
	Name        string    `json:"name"`
	Keywords    int       `json:"keywords"`
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path,omitempty"`
	Sealed      bool      `json:"sealed,omitempty"`
	Skipped     int       `json:"skipped"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Event is published after every moderation and list reload.
type Event struct {
	Type       string `json:"type"` // "filter" or "list_reload"
	RequestID  string `json:"request_id,omitempty"`
	List       string `json:"list,omitempty"`
	Decision   string `json:"decision,omitempty"`
	MatchCount int    `json:"match_count"`
	Keywords   int    `json:"keywords,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Publisher receives events, e.g. the WebSocket hub.
type Publisher interface {
	Publish(Event)
}

// Options wires the service. Every collaborator is optional.
type Options struct {
	Filter      redactor.Options
	DefaultList string
	Thresholds  policy.Thresholds
	Policy      *policy.Engine
	Audit       *audit.Logger
	Notifier    *notifications.Dispatcher
	Publisher   Publisher
	Logger      *log.Logger
	// Load controls how list files are parsed. Strict also rejects invalid
	// inline keywords instead of dropping them.
	Load      wordlist.LoadOptions
	CacheSize int
}

type namedList struct {
	redactor *redactor.Redactor
	source   config.ListConfig
	info     ListInfo
}

// Service moderates text against named lists and ad-hoc keyword sets.
type Service struct {
	opts   Options
	logger *log.Logger
	cache  *lruCache[uint64, *redactor.Dictionary]

	mu    sync.RWMutex
	lists map[string]*namedList
}

// New creates a Service with no lists loaded.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	return &Service{
		opts:   opts,
		logger: opts.Logger.WithPrefix("moderation"),
		cache:  newLRUCache[uint64, *redactor.Dictionary](opts.CacheSize),
		lists:  make(map[string]*namedList),
	}
}

// LoadLists loads every configured list. It stops at the first failure.
func (s *Service) LoadLists(lists []config.ListConfig) error {
	for _, lc := range lists {
		if _, err := s.AddList(lc); err != nil {
			return err
		}
	}
	return nil
}

// AddList loads a list from its file and inline keywords and registers it,
// replacing any list of the same name.
func (s *Service) AddList(lc config.ListConfig) (ListInfo, error) {
	keywords, info, err := s.readSource(lc)
	if err != nil {
		return ListInfo{}, err
	}
	r, err := redactor.NewWithOptions(s.opts.Filter, keywords...)
	if err != nil {
		return ListInfo{}, fmt.Errorf("list %q: %w", lc.Name, err)
	}
	info = describe(info, r.Dictionary())

	s.mu.Lock()
	s.lists[lc.Name] = &namedList{redactor: r, source: lc, info: info}
	s.mu.Unlock()

	telemetry.DictionaryKeywords.WithLabelValues(lc.Name).Set(float64(info.Keywords))
	s.logger.Info("list loaded", "list", lc.Name, "keywords", info.Keywords, "skipped", info.Skipped)
	return info, nil
}

// readSource merges file and inline keywords. Invalid inline keywords are
// dropped unless loading is strict.
func (s *Service) readSource(lc config.ListConfig) ([]string, ListInfo, error) {
	info := ListInfo{Name: lc.Name, Path: lc.Path}
	var keywords []string
	if lc.Path != "" {
		lopts := s.opts.Load
		lopts.Format = lc.Format
		l, err := wordlist.Load(lc.Path, lopts)
		if err != nil {
			return nil, info, fmt.Errorf("list %q: %w", lc.Name, err)
		}
		keywords = append(keywords, l.Keywords...)
		info.Sealed = l.Sealed
		info.Skipped = l.Skipped + l.Invalid
	}
	inline := lc.Keywords
	if !s.opts.Load.Strict {
		var dropped int
		inline, dropped = redactor.ValidKeywords(inline)
		info.Skipped += dropped
	}
	return append(keywords, inline...), info, nil
}

func describe(info ListInfo, d *redactor.Dictionary) ListInfo {
	info.Keywords = d.Len()
	info.Fingerprint = strconv.FormatUint(d.Fingerprint(), 16)
	info.LoadedAt = time.Now().UTC()
	return info
}

// Reload re-reads a list from its source. On failure the previous
// dictionary stays in service.
func (s *Service) Reload(ctx context.Context, name string) (ListInfo, error) {
	s.mu.RLock()
	nl, ok := s.lists[name]
	s.mu.RUnlock()
	if !ok {
		return ListInfo{}, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}

	keywords, info, err := s.readSource(nl.source)
	if err == nil {
		err = nl.redactor.Replace(keywords)
	}
	return s.finishReload(ctx, name, nl, info, err)
}

// ApplyReload installs a list delivered by a wordlist.Watcher. Inline
// keywords from the configuration are kept.
func (s *Service) ApplyReload(ctx context.Context, name string, l *wordlist.List, loadErr error) {
	s.mu.RLock()
	nl, ok := s.lists[name]
	s.mu.RUnlock()
	if !ok {
		return
	}

	err := loadErr
	info := ListInfo{Name: name, Path: nl.source.Path}
	if err == nil {
		inline := nl.source.Keywords
		var dropped int
		if !s.opts.Load.Strict {
			inline, dropped = redactor.ValidKeywords(inline)
		}
		info.Sealed = l.Sealed
		info.Skipped = l.Skipped + l.Invalid + dropped
		err = nl.redactor.Replace(append(slices.Clone(l.Keywords), inline...))
	}
	_, _ = s.finishReload(ctx, name, nl, info, err)
}

func (s *Service) finishReload(ctx context.Context, name string, nl *namedList, info ListInfo, err error) (ListInfo, error) {
	if err != nil {
		telemetry.ListReloadsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("list reload failed, keeping previous dictionary", "list", name, "err", err)
		s.opts.Notifier.Notify(ctx, notifications.Payload{
			Event: notifications.EventListReloadFailed,
			List:  name,
			Error: err.Error(),
		})
		s.publish(Event{Type: "list_reload", List: name, Error: err.Error()})
		return ListInfo{}, err
	}

	info = describe(info, nl.redactor.Dictionary())
	s.mu.Lock()
	nl.info = info
	s.mu.Unlock()

	telemetry.ListReloadsTotal.WithLabelValues(name, "ok").Inc()
	telemetry.DictionaryKeywords.WithLabelValues(name).Set(float64(info.Keywords))
	if s.opts.Audit != nil {
		if err := s.opts.Audit.Log("list_reload", "allow", "system", map[string]any{
			"list":        name,
			"keywords":    info.Keywords,
			"fingerprint": info.Fingerprint,
		}); err != nil {
			s.logger.Error("audit write failed", "err", err)
		}
	}
	s.publish(Event{Type: "list_reload", List: name, Keywords: info.Keywords})
	s.logger.Info("list reloaded", "list", name, "keywords", info.Keywords)
	return info, nil
}

// Lists returns the loaded lists sorted by name.
func (s *Service) Lists() []ListInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ListInfo, 0, len(s.lists))
	for _, nl := range s.lists {
		out = append(out, nl.info)
	}
	slices.SortFunc(out, func(a, b ListInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Dictionary returns the current dictionary of a named list.
func (s *Service) Dictionary(name string) (*redactor.Dictionary, error) {
	s.mu.RLock()
	nl, ok := s.lists[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	return nl.redactor.Dictionary(), nil
}

// Watch reloads lists marked watch in their configuration until ctx ends.
// It returns nil immediately when no list is watched.
func (s *Service) Watch(ctx context.Context) error {
	s.mu.RLock()
	var watched []config.ListConfig
	for _, nl := range s.lists {
		if nl.source.Watch && nl.source.Path != "" {
			watched = append(watched, nl.source)
		}
	}
	s.mu.RUnlock()
	if len(watched) == 0 {
		return nil
	}

	// Inline keywords are merged in ApplyReload; the watcher parses the file.
	w, err := wordlist.NewWatcher(func(name string, l *wordlist.List, err error) {
		s.ApplyReload(ctx, name, l, err)
	}, wordlist.WatcherOptions{Load: s.opts.Load, Logger: s.opts.Logger})
	if err != nil {
		return err
	}
	for _, lc := range watched {
		if err := w.Add(lc.Name, lc.Path, lc.Format); err != nil {
			return err
		}
	}
	return w.Run(ctx)
}

// resolve picks the dictionary and base options for req.
func (s *Service) resolve(req Request) (*redactor.Dictionary, redactor.Options, string, error) {
	if req.Keywords != nil {
		d, err := s.adHoc(req.Keywords)
		return d, s.opts.Filter, "", err
	}

	name := req.List
	if name == "" {
		name = s.opts.DefaultList
	}
	if name == "" {
		return nil, redactor.Options{}, "", ErrNoDictionary
	}

	s.mu.RLock()
	nl, ok := s.lists[name]
	s.mu.RUnlock()
	if !ok {
		return nil, redactor.Options{}, "", fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	return nl.redactor.Dictionary(), nl.redactor.Options(), name, nil
}

// adHoc returns a cached dictionary for keywords, building it on a miss.
func (s *Service) adHoc(keywords []string) (*redactor.Dictionary, error) {
	fp := redactor.FingerprintOf(keywords)
	if d, ok := s.cache.Get(fp); ok && d.Equal(keywords) {
		telemetry.DictionaryCacheTotal.WithLabelValues("hit").Inc()
		return d, nil
	}
	telemetry.DictionaryCacheTotal.WithLabelValues("miss").Inc()

	d, err := redactor.BuildDictionary(keywords)
	if err != nil {
		return nil, err
	}
	s.cache.Put(fp, d)
	return d, nil
}

// Moderate filters req.Text, evaluates the policy and records the outcome.
func (s *Service) Moderate(ctx context.Context, req Request) (Verdict, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "moderation.Moderate",
		trace.WithAttributes(attribute.String("aegismask.request_id", req.ID)))
	defer span.End()

	dict, opts, listName, err := s.resolve(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	if req.IgnoreWhitespace != nil {
		opts.IgnoreWhitespace = *req.IgnoreWhitespace
	}
	if req.CaseInsensitive != nil {
		opts.CaseInsensitive = *req.CaseInsensitive
	}

	label := listName
	if label == "" {
		label = telemetry.AdHocList
	}

	start := time.Now()
	res := dict.Filter(req.Text, opts)
	elapsed := time.Since(start)

	distinct := make(map[string]struct{}, len(res.Keywords))
	for _, k := range res.Keywords {
		distinct[k] = struct{}{}
	}

	decision := policy.Allow
	if s.opts.Policy != nil {
		decision, err = s.opts.Policy.Evaluate(ctx, policy.Input{
			List:       listName,
			MatchCount: len(res.Keywords),
			Distinct:   len(distinct),
			TextLength: utf8.RuneCountInString(req.Text),
			Actor:      req.Actor,
			Thresholds: s.opts.Thresholds,
		})
		if err != nil {
			s.logger.Warn("policy evaluation failed", "request_id", req.ID, "err", err)
			span.RecordError(err)
		}
	}

	telemetry.FilterRequestsTotal.WithLabelValues(label, decision.String()).Inc()
	telemetry.KeywordsMatchedTotal.WithLabelValues(label).Add(float64(len(res.Keywords)))
	telemetry.FilterDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.String("aegismask.list", label),
		attribute.Int("aegismask.match_count", len(res.Keywords)),
		attribute.String("aegismask.decision", decision.String()),
	)

	if s.opts.Audit != nil {
		if err := s.opts.Audit.Record(audit.Entry{
			RequestID:   req.ID,
			Action:      "filter",
			List:        label,
			Fingerprint: strconv.FormatUint(dict.Fingerprint(), 16),
			MatchCount:  len(res.Keywords),
			Distinct:    len(distinct),
			Decision:    decision.String(),
			Actor:       req.Actor,
		}); err != nil {
			s.logger.Error("audit write failed", "request_id", req.ID, "err", err)
		}
	}

	switch decision {
	case policy.Deny:
		s.notify(ctx, notifications.EventContentDenied, req.ID, label, decision, len(res.Keywords))
	case policy.Review:
		s.notify(ctx, notifications.EventContentReview, req.ID, label, decision, len(res.Keywords))
	}
	s.publish(Event{
		Type:       "filter",
		RequestID:  req.ID,
		List:       label,
		Decision:   decision.String(),
		MatchCount: len(res.Keywords),
	})

	s.logger.Debug("moderated", "request_id", req.ID, "list", label, "matches", len(res.Keywords), "decision", decision, "took", elapsed)

	return Verdict{
		ID:       req.ID,
		Result:   res.Result,
		Keywords: res.Keywords,
		Decision: decision,
		List:     listName,
		Duration: elapsed,
	}, nil
}

func (s *Service) notify(ctx context.Context, ev notifications.Event, id, list string, d policy.Decision, matches int) {
	s.opts.Notifier.Notify(ctx, notifications.Payload{
		Event:      ev,
		RequestID:  id,
		List:       list,
		Decision:   d.String(),
		MatchCount: matches,
	})
}

func (s *Service) publish(e Event) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(e)
	}
}
