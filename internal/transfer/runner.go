package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/chaz8081/motion-installer/internal/discovery"
	"github.com/chaz8081/motion-installer/internal/motion"
	"github.com/chaz8081/motion-installer/internal/registry"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Factory     SessionFactory
	Registry    *registry.Registry // shared peer registry; a fresh one if nil
	EventBuffer int                // undelivered events kept before dropping
}

// Runner drives one communication run: a session per adapter, all running
// in parallel, plus the discovery coordinator they share.
type Runner struct {
	opts    RunnerOptions
	reg     *registry.Registry
	emitter *Emitter
	once    sync.Once
}

func NewRunner(opts RunnerOptions) *Runner {
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Runner{
		opts:    opts,
		reg:     reg,
		emitter: NewEmitter(opts.EventBuffer),
	}
}

// Events returns the run's event stream. It is closed when Run returns.
func (r *Runner) Events() <-chan Event {
	return r.emitter.Events()
}

// Registry returns the peer registry shared by this run's sessions.
func (r *Runner) Registry() *registry.Registry {
	return r.reg
}

// Run uploads commands through every adapter and blocks until all sessions
// end. Cancelling ctx stops the run: the coordinator stops taking requests
// and every session tears down its link. A Runner runs once.
//
// Commands that do not frame are skipped and reported on every adapter;
// their errors are part of the returned error. Run fails before opening
// any adapter only when no command is left to send.
func (r *Runner) Run(ctx context.Context, commands []motion.Command, adapters []string) error {
	err := errors.New("transfer: runner already used")
	r.once.Do(func() {
		defer r.emitter.Close()
		err = r.run(ctx, commands, adapters)
	})
	return err
}

func (r *Runner) run(ctx context.Context, commands []motion.Command, adapters []string) error {
	if r.opts.Factory == nil {
		return errors.New("transfer: no session factory")
	}
	if len(commands) == 0 {
		return errors.New("transfer: no motion programs to send")
	}
	if len(adapters) == 0 {
		return errors.New("transfer: no adapters selected")
	}
	commands, skipped := sendable(commands)
	if len(commands) == 0 {
		return fmt.Errorf("transfer: no sendable motion programs: %w", errors.Join(skipped...))
	}

	r.reg.Clear()

	coord := discovery.New()
	coordCtx, stopCoord := context.WithCancel(ctx)
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		_ = coord.Run(coordCtx)
	}()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = slices.Clone(skipped)
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, adapter := range adapters {
		rep := NewReporter(r.emitter, adapter, len(commands))
		for _, err := range skipped {
			rep.Message("skipped %v", err)
		}
		s, err := r.opts.Factory(adapter, SessionDeps{
			Commands:    commands,
			Registry:    r.reg,
			Coordinator: coord,
			Reporter:    rep,
		})
		if err != nil {
			err = &LinkError{Adapter: adapter, Op: "open", Err: err}
			rep.Error(err)
			record(err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("[RUN] session ended with error", "adapter", s.Adapter(), "error", err)
				record(err)
			}
		}()
	}

	wg.Wait()
	stopCoord()
	<-coordDone

	return errors.Join(errs...)
}

// sendable splits commands into those that frame and errors for the rest.
func sendable(commands []motion.Command) ([]motion.Command, []error) {
	var (
		ok      []motion.Command
		skipped []error
	)
	for _, cmd := range commands {
		if _, err := Plan(cmd.Wire); err != nil {
			slog.Warn("[RUN] skipping program", "program", cmd.Name, "error", err)
			skipped = append(skipped, fmt.Errorf("program %q: %w", cmd.Name, err))
			continue
		}
		ok = append(ok, cmd)
	}
	return ok, skipped
}
