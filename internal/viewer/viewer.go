// Package viewer is the command surface of the replay core. It owns the
// current replay context and the cursor state (turn, selection, camera,
// autoplay) and applies user intents to them.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/derive"
	"fluorine/viewer/internal/flog"
	"fluorine/viewer/internal/logging"
	"fluorine/viewer/internal/query"
	"fluorine/viewer/internal/replay"
)

const (
	// MessageCouldNotOpen is shown when a file decodes to nothing usable.
	MessageCouldNotOpen = "Couldn't open this file."
	// MessageCouldNotOpenOverlay is shown when an f-log cannot be read.
	MessageCouldNotOpenOverlay = "Couldn't open this f-log."
	// MessageOpenGameFirst is shown when an f-log is opened with no replay.
	MessageOpenGameFirst = "Open a game first."
)

var (
	// ErrRecentlyOpened reports an open request refused by the dedupe window.
	ErrRecentlyOpened = errors.New("viewer: file was opened moments ago")
	// ErrSuperseded reports a load whose result arrived after a newer request.
	ErrSuperseded = errors.New("viewer: load superseded by a newer request")
	// ErrNoReplay reports a command that needs a loaded replay.
	ErrNoReplay = errors.New("viewer: no replay loaded")
)

// Alerter shows a user-facing message. It is called at most once per load.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(message string)

// Alert implements Alerter.
func (f AlertFunc) Alert(message string) { f(message) }

// Option customises viewer construction.
type Option func(*Viewer)

// WithClock overrides the clock used for load timestamps and the dedupe window.
func WithClock(clock Clock) Option {
	return func(v *Viewer) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithAlerter routes user-facing messages.
func WithAlerter(alerter Alerter) Option {
	return func(v *Viewer) { v.alerter = alerter }
}

// WithLogger overrides the base logger.
func WithLogger(logger *logging.Logger) Option {
	return func(v *Viewer) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Viewer holds one replay at a time plus the cursor state around it.
type Viewer struct {
	cfg     config.Config
	clock   Clock
	alerter Alerter
	logger  *logging.Logger
	gate    *Gate
	writer  *replay.Writer

	ctx    context.Context
	cancel context.CancelFunc

	current atomic.Pointer[query.Context]
	pending sync.WaitGroup

	mu        sync.Mutex
	turn      int
	selection Selection
	offsetX   int
	offsetY   int
	overlay   *flog.Overlay
	autoplay  *Loop
}

// New builds a viewer from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Viewer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	v := &Viewer{
		cfg:    *cfg,
		clock:  systemClock{},
		logger: logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	v.gate = NewGate(v.cfg.DedupeWindow(), WithGateClock(v.clock))
	v.writer = replay.NewWriter(v.cfg.Export.Indent, v.cfg.Load.ReplayExtension, v.logger)
	v.ctx, v.cancel = context.WithCancel(logging.ContextWithLogger(context.Background(), v.logger))
	return v
}

// Close stops autoplay, abandons in-flight decompressions and waits for them.
func (v *Viewer) Close() {
	v.StopAutoplay()
	v.cancel()
	v.pending.Wait()
}

// Wait blocks until every background load has finished.
func (v *Viewer) Wait() { v.pending.Wait() }

// Current returns the published replay context, or nil.
func (v *Viewer) Current() *query.Context { return v.current.Load() }

// GateMetrics reports how many requests and results the load gate dropped.
func (v *Viewer) GateMetrics() DropCounters { return v.gate.Metrics() }

// Title is the window title for the current replay.
func (v *Viewer) Title() string { return v.Current().Title() }

// Load tracks one open request.
type Load struct {
	ID    string
	Path  string
	Async bool

	done    chan struct{}
	context *query.Context
	err     error
}

func newLoad(id, path string) *Load {
	return &Load{ID: id, Path: path, done: make(chan struct{})}
}

func (l *Load) finish(qc *query.Context, err error) {
	l.context = qc
	l.err = err
	close(l.done)
}

// Done is closed when the load has been published or has failed.
func (l *Load) Done() <-chan struct{} { return l.done }

// Wait blocks until the load finishes and returns its outcome.
func (l *Load) Wait() (*query.Context, error) {
	<-l.done
	return l.context, l.err
}

// loadAlert raises at most one message for a load, and none when silent.
type loadAlert struct {
	once    sync.Once
	alerter Alerter
	silent  bool
}

func (a *loadAlert) raise(message string) {
	if a.silent || a.alerter == nil {
		return
	}
	a.once.Do(func() { a.alerter.Alert(message) })
}

// UserMessage maps a load error to the text shown to the user.
func UserMessage(err error) string {
	var schemaErr *replay.SchemaError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &schemaErr):
		return schemaErr.UserMessage()
	case errors.Is(err, flog.ErrNoReplay):
		return MessageOpenGameFirst
	case errors.Is(err, flog.ErrParse):
		return MessageCouldNotOpenOverlay
	default:
		return MessageCouldNotOpen
	}
}

// Open loads path. Plain JSON is read and published before Open returns;
// anything else is decompressed in the background unless the name carries the
// plain extension. Silent opens never alert.
func (v *Viewer) Open(path string, silent bool) *Load {
	v.StopAutoplay()

	ctx, logger, id := logging.WithLoad(v.ctx, v.logger, "")
	logger = logger.With(logging.String("path", path))
	ctx = logging.ContextWithLogger(ctx, logger)
	load := newLoad(id, path)

	//1.- Refuse duplicates of a fresh successful load before touching the disk.
	ticket, decision := v.gate.Begin(path)
	if !decision.Accepted {
		logger.Info("ignoring request to open recently opened file", logging.Duration("age", decision.Age))
		load.finish(nil, ErrRecentlyOpened)
		return load
	}
	alert := &loadAlert{alerter: v.alerter, silent: silent}
	logger.Debug("opening replay", logging.Bool("silent", silent))

	//2.- Plain JSON takes the synchronous route.
	doc, src, err := replay.ReadPlain(ctx, path)
	if err == nil || !replay.IsNotJSON(err) {
		v.complete(ctx, ticket, doc, src, err, alert, load)
		return load
	}
	if replay.HasExtension(path, v.cfg.Load.PlainExtension) {
		v.complete(ctx, ticket, nil, src, fmt.Errorf("%w: %v", replay.ErrDecode, err), alert, load)
		return load
	}

	//3.- Everything else is decompressed off the caller's goroutine.
	load.Async = true
	v.pending.Add(1)
	go func() {
		defer v.pending.Done()
		doc, src, err := v.decompress(ctx, path)
		v.complete(ctx, ticket, doc, src, err, alert, load)
	}()
	return load
}

// decompress converts a panic inside a codec into a decode failure.
func (v *Viewer) decompress(ctx context.Context, path string) (doc *replay.Document, src replay.Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			src = replay.Source{Path: path}
			err = fmt.Errorf("%w: decoder panic: %v", replay.ErrDecode, r)
		}
	}()
	return replay.ReadCompressed(ctx, path, v.cfg.MaxDecompressedBytes())
}

// complete derives and publishes a decoded replay, or reports why it failed.
func (v *Viewer) complete(ctx context.Context, ticket Ticket, doc *replay.Document, src replay.Source, err error, alert *loadAlert, load *Load) {
	logger := logging.LoggerFromContext(ctx)
	var qc *query.Context
	if err == nil {
		var derived *derive.Result
		derived, err = derive.Run(ctx, doc)
		if err == nil {
			qc, err = query.New(doc, derived, ticket.Path, src, v.clock.Now())
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Info("replay load abandoned", logging.Error(err))
		} else {
			logger.Warn("replay load failed", logging.Error(err), logging.Bool("compressed", src.Compressed()))
			alert.raise(UserMessage(err))
		}
		load.finish(nil, err)
		return
	}

	//1.- Publish under the cursor lock so the reset and the swap are one step.
	v.mu.Lock()
	decision := v.gate.Commit(ticket)
	if !decision.Accepted {
		v.mu.Unlock()
		logger.Info("discarding superseded replay", logging.Int64("sequence", int64(ticket.Sequence)))
		load.finish(nil, ErrSuperseded)
		return
	}
	v.current.Store(qc)
	v.turn = 0
	v.selection = Selection{}
	v.offsetX, v.offsetY = 0, 0
	v.overlay = nil
	v.mu.Unlock()

	logger.Info("replay loaded",
		logging.Int("width", doc.Width),
		logging.Int("height", doc.Height),
		logging.Int("players", doc.PlayerCount()),
		logging.Int("turns", doc.Len()),
		logging.String("codec", src.Codec),
		logging.Duration("elapsed", v.clock.Now().Sub(ticket.IssuedAt)),
	)
	load.finish(qc, nil)
}

// State is a consistent snapshot of the cursor.
type State struct {
	Context     *query.Context
	Turn        int
	Selection   Selection
	OffsetX     int
	OffsetY     int
	Autoplaying bool
	Overlay     bool
}

// State returns the cursor and the context it refers to.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		Context:     v.current.Load(),
		Turn:        v.turn,
		Selection:   v.selection,
		OffsetX:     v.offsetX,
		OffsetY:     v.offsetY,
		Autoplaying: v.autoplay != nil,
		Overlay:     v.overlay != nil,
	}
}

// Save writes the requested part of the current replay to path. Frame-scoped
// exports use the current turn.
func (v *Viewer) Save(kind replay.ExportKind, path string) error {
	v.mu.Lock()
	qc, turn := v.current.Load(), v.turn
	v.mu.Unlock()
	if qc == nil {
		return ErrNoReplay
	}
	return v.writer.Save(qc.Doc, kind, turn, path)
}

// OpenOverlay reads an f-log and attaches it to the current replay.
func (v *Viewer) OpenOverlay(path string) error {
	if v.Current() == nil {
		v.alert(MessageOpenGameFirst)
		return flog.ErrNoReplay
	}
	overlay, err := flog.ReadFile(path)
	if err != nil {
		v.logger.Warn("f-log open failed", logging.String("path", path), logging.Error(err))
		v.alert(MessageCouldNotOpenOverlay)
		return err
	}
	v.mu.Lock()
	v.overlay = overlay
	v.mu.Unlock()
	v.logger.Info("f-log loaded",
		logging.String("path", path),
		logging.Int("entries", overlay.Entries),
		logging.Int("skipped", overlay.Skipped),
		logging.Bool("repaired", overlay.Repaired),
	)
	return nil
}

// overlayTurn converts the cursor into the turn numbering bots write.
func (v *Viewer) overlayTurn() int {
	if v.cfg.Display.TurnsStartAtOne {
		return v.turn + 1
	}
	return v.turn
}

// OverlayMessage returns the f-log message for x, y at the current turn.
func (v *Viewer) OverlayMessage(x, y int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlay.Message(v.overlayTurn(), x, y)
}

// OverlayColour returns the f-log colour for x, y at the current turn.
func (v *Viewer) OverlayColour(x, y int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlay.Colour(v.overlayTurn(), x, y)
}

// SelectionMessage returns the f-log message under the selection.
func (v *Viewer) SelectionMessage() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	x, y, ok := v.selectionXYLocked()
	if !ok {
		return "", false
	}
	return v.overlay.Message(v.overlayTurn(), x, y)
}

func (v *Viewer) alert(message string) {
	if v.alerter != nil {
		v.alerter.Alert(message)
	}
}
