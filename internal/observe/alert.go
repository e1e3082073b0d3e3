package observe

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notionsync/notionsync/internal/notion"
)

// AlertSink files an alert. notion.Client satisfies it.
type AlertSink interface {
	CreateAlert(ctx context.Context, a *notion.Alert) error
}

// AlertConfig controls which records become alerts and how they are tagged.
type AlertConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MinLevel    string `mapstructure:"min_level"`
	Service     string `mapstructure:"service"`
	Environment string `mapstructure:"environment"`

	// Timeout bounds delivery of one alert, retries included.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultAlertConfig returns sensible defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		Enabled:     true,
		MinLevel:    "warn",
		Service:     "notionsync",
		Environment: "production",
		Timeout:     30 * time.Second,
	}
}

// correlationKey is the attribute used as the alert correlation id.
const correlationKey = "pass_id"

// AlertHandler passes every record to the inner handler and additionally
// files records at or above the minimum level with the sink. Delivery
// failures are written to the inner handler only, so a failing sink cannot
// trigger further alerts.
type AlertHandler struct {
	inner slog.Handler
	sink  AlertSink
	min   slog.Level
	cfg   AlertConfig
	now   func() time.Time

	attrs  []slog.Attr
	groups []string

	// busy drops alerts raised while another is being delivered; each
	// drop is noted on the inner handler.
	busy *atomic.Bool
}

// NewAlertHandler wraps inner. A nil sink makes it a pass-through.
func NewAlertHandler(inner slog.Handler, sink AlertSink, cfg AlertConfig) (*AlertHandler, error) {
	level, err := ParseLevel(cfg.MinLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAlertConfig().Timeout
	}
	return &AlertHandler{
		inner: inner,
		sink:  sink,
		min:   level,
		cfg:   cfg,
		now:   time.Now,
		busy:  new(atomic.Bool),
	}, nil
}

func (h *AlertHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l) || (h.sink != nil && l >= h.min)
}

func (h *AlertHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if h.sink == nil || r.Level < h.min {
		return err
	}
	if !h.busy.CompareAndSwap(false, true) {
		h.dropped(ctx, r)
		return err
	}
	defer h.busy.Store(false)

	alert := h.alertFor(r)
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Timeout)
	defer cancel()
	if derr := h.sink.CreateAlert(actx, alert); derr != nil {
		h.deliveryFailed(ctx, alert, derr)
	}
	return err
}

func (h *AlertHandler) alertFor(r slog.Record) *notion.Alert {
	fields := make(map[string]any, len(h.attrs)+r.NumAttrs())
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	for _, a := range h.attrs {
		addAttr(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(fields, prefix, a)
		return true
	})

	correlation, _ := fields[correlationKey].(string)
	if correlation == "" {
		correlation = uuid.NewString()
	}

	created := r.Time
	if created.IsZero() {
		created = h.now()
	}
	return &notion.Alert{
		Title:         r.Message,
		Severity:      Severity(r.Level),
		Service:       h.cfg.Service,
		Environment:   h.cfg.Environment,
		Context:       fields,
		CorrelationID: correlation,
		Created:       created,
	}
}

func addAttr(fields map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addAttr(fields, prefix+a.Key+".", ga)
		}
		return
	}
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			fields[prefix+a.Key] = err.Error()
			return
		}
		fields[prefix+a.Key] = v.Any()
	case slog.KindTime:
		fields[prefix+a.Key] = v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		fields[prefix+a.Key] = v.Duration().String()
	default:
		fields[prefix+a.Key] = v.Any()
	}
}

func (h *AlertHandler) deliveryFailed(ctx context.Context, a *notion.Alert, err error) {
	if !h.inner.Enabled(ctx, slog.LevelError) {
		return
	}
	r := slog.NewRecord(h.now(), slog.LevelError, "alert delivery failed", 0)
	r.AddAttrs(
		slog.String("alert_title", a.Title),
		slog.String("correlation_id", a.CorrelationID),
		slog.String("error", err.Error()),
	)
	_ = h.inner.Handle(ctx, r)
}

// dropped notes on the inner handler that r was not filed because another
// alert was being delivered.
func (h *AlertHandler) dropped(ctx context.Context, r slog.Record) {
	if !h.inner.Enabled(ctx, slog.LevelWarn) {
		return
	}
	d := slog.NewRecord(h.now(), slog.LevelWarn, "alert dropped, another alert in flight", 0)
	d.AddAttrs(
		slog.String("alert_title", r.Message),
		slog.String("severity", Severity(r.Level)),
	)
	_ = h.inner.Handle(ctx, d)
}

func (h *AlertHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *AlertHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.inner = h.inner.WithGroup(name)
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

// Severity maps a log level onto the alert severity vocabulary.
func Severity(l slog.Level) string {
	switch {
	case l >= LevelFatal:
		return "critical"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warning"
	}
	return "info"
}
