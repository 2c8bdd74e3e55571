package consent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sozodigi/telecare/internal/channel"
)

// DefaultRequestTimeout is how long an outgoing request waits for the
// other side before it expires back to idle.
const DefaultRequestTimeout = 60 * time.Second

// Notifier surfaces toast-style notices to the user.
type Notifier interface {
	Notify(text, level string)
}

// Prompter surfaces and dismisses the consent prompt for an incoming
// termination request. Pure view: it makes no decisions.
type Prompter interface {
	PromptConsent(req EndRequest)
	DismissConsent()
}

// Finalizer performs the one-time side effects of ending the session.
// Implementations must be idempotent.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// Coordinator drives the termination state machine for one participant:
// it pumps inbound channel events, executes the machine's effects, and
// exposes the user-initiated actions.
type Coordinator struct {
	mu        sync.Mutex
	machine   *Machine
	adapter   channel.Adapter
	notifier  Notifier
	prompter  Prompter
	finalizer Finalizer
	timeout   time.Duration

	timeoutSeq int
	timer      *time.Timer
}

// CoordinatorOpts holds parameters for creating a Coordinator.
type CoordinatorOpts struct {
	Session   SessionContext
	Adapter   channel.Adapter
	Notifier  Notifier
	Prompter  Prompter
	Finalizer Finalizer
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("consent: adapter is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("consent: notifier is required")
	}
	if opts.Prompter == nil {
		return nil, fmt.Errorf("consent: prompter is required")
	}
	if opts.Finalizer == nil {
		return nil, fmt.Errorf("consent: finalizer is required")
	}
	machine, err := NewMachine(opts.Session)
	if err != nil {
		return nil, err
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Coordinator{
		machine:   machine,
		adapter:   opts.Adapter,
		notifier:  opts.Notifier,
		prompter:  opts.Prompter,
		finalizer: opts.Finalizer,
		timeout:   timeout,
	}, nil
}

// Run connects the adapter and pumps inbound events until the context is
// cancelled or the adapter closes its channel. It closes the adapter on
// the way out.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("consent: connect: %w", err)
	}
	inbound, err := c.adapter.Listen(ctx)
	if err != nil {
		c.adapter.Close()
		return fmt.Errorf("consent: listen: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if err := c.adapter.Close(); err != nil {
				log.Printf("consent: close adapter: %v", err)
			}
			return nil
		case ev, ok := <-inbound:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies one inbound channel event.
func (c *Coordinator) HandleEvent(ctx context.Context, ev channel.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEffects(ctx, c.machine.HandleEvent(ev))
}

// State returns the machine's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// RequestEnd sends a termination request to the other participant. If the
// request cannot be published the machine is returned to idle, since the
// other side never saw it.
func (c *Coordinator) RequestEnd(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	effects, err := c.machine.RequestEnd()
	if err != nil {
		return err
	}
	if pubErr := c.applyEffects(ctx, effects); pubErr != nil {
		c.machine.AbortRequest()
		c.stopTimeout()
		return fmt.Errorf("consent: send end request: %w", pubErr)
	}
	return nil
}

// CancelRequest withdraws this participant's outstanding request.
func (c *Coordinator) CancelRequest(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	effects, err := c.machine.CancelRequest()
	if err != nil {
		return err
	}
	c.applyEffects(ctx, effects)
	return nil
}

// Accept agrees to the remote request and finalizes the session.
func (c *Coordinator) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	effects, err := c.machine.Accept()
	if err != nil {
		return err
	}
	// A failed consent publish is reported but does not block finalization:
	// getting the user out of the call wins over handshake delivery.
	c.applyEffects(ctx, effects)
	return nil
}

// Reject declines the remote request; the session continues.
func (c *Coordinator) Reject(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	effects, err := c.machine.Reject()
	if err != nil {
		return err
	}
	c.applyEffects(ctx, effects)
	return nil
}

// ForceEnd finalizes without consent, the session expiry timer's path.
// Any outstanding request is discarded. Safe to call more than once.
func (c *Coordinator) ForceEnd(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEffects(ctx, c.machine.ForceFinalize())
}

// applyEffects executes the machine's requested effects in order and
// returns the first publish error, if any. Callers hold c.mu.
func (c *Coordinator) applyEffects(ctx context.Context, effects []Effect) error {
	var publishErr error
	for _, eff := range effects {
		switch eff.Kind {
		case EffectPublish:
			if err := c.adapter.Publish(ctx, eff.Event); err != nil {
				log.Printf("consent: publish %s: %v", eff.Event.Name, err)
				c.notifier.Notify("Could not reach the other participant. Please try again.", "error")
				if publishErr == nil {
					publishErr = err
				}
			}
		case EffectPromptConsent:
			c.prompter.PromptConsent(eff.Request)
		case EffectDismissPrompt:
			c.prompter.DismissConsent()
		case EffectNotify:
			c.notifier.Notify(eff.Notice.Text, eff.Notice.Level)
		case EffectFinalize:
			if err := c.finalizer.Finalize(ctx); err != nil {
				log.Printf("consent: finalize: %v", err)
			}
			c.machine.Finalized()
		case EffectStartTimeout:
			c.startTimeout()
		case EffectStopTimeout:
			c.stopTimeout()
		}
	}
	return publishErr
}

// startTimeout arms the consent timeout for the current outgoing request.
// Callers hold c.mu.
func (c *Coordinator) startTimeout() {
	c.timeoutSeq++
	seq := c.timeoutSeq
	c.timer = time.AfterFunc(c.timeout, func() {
		c.expireRequest(seq)
	})
}

// stopTimeout invalidates any armed timeout. Callers hold c.mu.
func (c *Coordinator) stopTimeout() {
	c.timeoutSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expireRequest fires when the consent timeout elapses. A response that
// races the timer wins or loses on the mutex; the seq check makes the
// loser a no-op.
func (c *Coordinator) expireRequest(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.timeoutSeq {
		return
	}
	c.applyEffects(context.Background(), c.machine.RequestTimedOut())
}
