package replay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/offlinefirst/scrollzoom/pkg/dotdash"
	"github.com/offlinefirst/scrollzoom/pkg/engine"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/logging"
	"github.com/offlinefirst/scrollzoom/pkg/procinfo"
	"github.com/offlinefirst/scrollzoom/pkg/runloop"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
)

// ErrRefused is returned when the engine cannot be enabled for a run.
var ErrRefused = errors.New("engine refused to enable")

// Result summarises a run.
type Result struct {
	// Posted counts synthesized events written to the trace.
	Posted int `json:"posted"`
	// Delivered and Dropped count scripted wheel events by whether they
	// reached the application.
	Delivered   int                 `json:"delivered"`
	Dropped     int                 `json:"dropped"`
	Activations []engine.Activation `json:"activations,omitempty"`
	Status      engine.Status       `json:"status"`
}

type scriptedSource struct {
	sink dotdash.Sink
}

func (s *scriptedSource) Start(sink dotdash.Sink) error {
	s.sink = sink
	return nil
}

func (s *scriptedSource) Stop() { s.sink = nil }

type run struct {
	scenario Scenario
	loop     *runloop.Manual
	sim      *events.Simulator
	engine   *engine.Engine
	resolver *procinfo.Resolver
	bundles  map[int32]string
	touches  *scriptedSource
	logger   *slog.Logger

	held   events.Flags
	result Result
}

// Run replays s and writes one JSON line per posted event to out. The
// virtual clock starts at zero and moves only through advance steps.
func Run(s Scenario, out io.Writer, logger *slog.Logger) (Result, error) {
	values, err := s.Settings()
	if err != nil {
		return Result{}, err
	}
	logger = logging.OrDiscard(logger)

	r := &run{
		scenario: s,
		loop:     runloop.NewManual(0),
		bundles:  make(map[int32]string, len(s.Processes)),
		touches:  &scriptedSource{},
		logger:   logging.Component(logger, "replay"),
	}
	for pid, id := range s.Processes {
		r.bundles[pid] = id
	}
	r.sim = events.NewSimulator(r.loop.Now)
	r.resolver = procinfo.New(procinfo.Options{Lookup: r.lookup})

	var writeErr error
	rec := events.NewRecorder(out)
	platform := events.Traced(r.sim, rec, func(err error) {
		if writeErr == nil {
			writeErr = err
		}
	})

	detector := dotdash.New(dotdash.Options{Now: r.loop.Now, Logger: logger})
	r.engine, err = engine.New(engine.Options{
		Platform:  platform,
		Loop:      r.loop,
		Settings:  settings.NewStore(values, logger),
		Processes: r.resolver,
		Detector:  detector,
		Touches:   r.touches,
		Logger:    logger,
	})
	if err != nil {
		return Result{}, err
	}
	defer r.engine.Close()

	for _, tap := range s.ForeignTaps {
		r.addForeign(tap)
	}
	if s.DotDash {
		r.engine.SetDotDashEnabled(true)
	}
	if !r.engine.SetEnabled(true) {
		return Result{}, ErrRefused
	}
	r.engine.Subscribe(func(a engine.Activation) {
		r.result.Activations = append(r.result.Activations, a)
	})

	for i, step := range s.Steps {
		if err := r.step(step); err != nil {
			return r.result, fmt.Errorf("step %d: %w", i+1, err)
		}
		if writeErr != nil {
			return r.result, writeErr
		}
	}

	r.result.Posted = rec.Count()
	r.result.Status = r.engine.Status()
	return r.result, nil
}

func (r *run) lookup(pid int32) (procinfo.Info, error) {
	id, ok := r.bundles[pid]
	if !ok {
		return procinfo.Info{}, procinfo.ErrNoProcess
	}
	return procinfo.Info{BundleID: id}, nil
}

func (r *run) addForeign(tap ForeignTap) {
	if tap.BundleID != "" {
		r.bundles[tap.PID] = tap.BundleID
		r.resolver.Forget()
	}
	options := events.OptionDefault
	if tap.ListenOnly {
		options = events.OptionListenOnly
	}
	r.sim.AddForeignTap(events.TapInfo{
		Mask:       events.MaskOf(events.TypeScrollWheel),
		Options:    options,
		TappingPID: tap.PID,
		Enabled:    true,
	})
}

func (r *run) step(st Step) error {
	switch {
	case st.Flags != nil:
		f, err := parseFlags(st.Flags)
		if err != nil {
			return err
		}
		r.held = f
		r.dispatch(events.NewSimEvent(events.TypeFlagsChanged))

	case st.Release:
		r.held = 0
		r.dispatch(events.NewSimEvent(events.TypeFlagsChanged))

	case st.Button != nil:
		t := events.TypeOtherMouseUp
		if st.Button.Down {
			t = events.TypeOtherMouseDown
		}
		ev := events.NewSimEvent(t)
		ev.SetInteger(events.FieldMouseButtonNumber, int64(st.Button.Number))
		r.dispatch(ev)

	case st.Scroll != nil:
		return r.scroll(*st.Scroll)

	case st.Touch != nil:
		if r.touches.sink == nil {
			r.logger.Warn("touch frame while multitouch input is off", "device", st.Touch.Device)
			return nil
		}
		r.touches.sink.HandleFrame(st.Touch.Device, st.Touch.touches())

	case st.Unplug != 0:
		if r.touches.sink == nil {
			r.logger.Warn("unplug while multitouch input is off", "device", st.Unplug)
			return nil
		}
		r.touches.sink.Forget(st.Unplug)

	case st.Advance > 0:
		r.loop.Advance(st.Advance)

	case st.Enabled != nil:
		if !r.engine.SetEnabled(*st.Enabled) {
			return ErrRefused
		}

	case st.DisableTap != "":
		if !r.sim.Disable(st.DisableTap, events.TypeTapDisabledByTimeout) {
			return fmt.Errorf("no tap named %q", st.DisableTap)
		}

	case st.AddTap != nil:
		r.addForeign(*st.AddTap)
	}
	return nil
}

func (r *run) scroll(s ScrollStep) error {
	scroll, momentum, err := s.phases()
	if err != nil {
		return err
	}
	ev := events.NewSimEvent(events.TypeScrollWheel).WithSender(s.Device)
	ev.SetInteger(events.FieldScrollPhase, scroll)
	ev.SetInteger(events.FieldMomentumPhase, momentum)
	ev.SetInteger(events.FieldIsContinuous, 1)
	if s.Phase == "" && s.Momentum == "" {
		ev.SetInteger(events.FieldIsContinuous, 0)
	}
	ev.SetInteger(events.FieldDeltaAxis1, int64(math.Copysign(math.Ceil(math.Abs(s.Delta)), s.Delta)))
	ev.SetDouble(events.FieldPointDeltaAxis1, s.Delta)
	if s.Inverted {
		ev.SetInteger(events.FieldDirectionInverted, 1)
	}
	ev.SetInteger(events.FieldTargetPID, int64(s.PID))
	ev.SetLocation(events.Point{X: s.X, Y: s.Y})

	if r.dispatch(ev) == nil {
		r.result.Dropped++
	} else {
		r.result.Delivered++
	}
	return nil
}

func (r *run) dispatch(ev *events.SimEvent) events.Event {
	ev.SetFlags(r.held)
	ev.SetTimestamp(r.loop.Now())
	return r.sim.Dispatch(ev)
}
