// Package app wires the newsletter subsystems together: the message
// registry, the bus with its middleware and retry policy, the dead letter
// service, both onboarding saga engines, and every step consumer.
//
// This package exists to break the import cycle: the root newsletter
// package defines Config and the sentinel errors (imported by bus, saga,
// the stores, etc.) and so cannot import those packages back. The app
// package sits above all subsystem packages and below the application
// layer.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/backoff"
	"github.com/MrEshboboyev/newsletter/bus"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/mail"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
	mw "github.com/MrEshboboyev/newsletter/middleware"
	"github.com/MrEshboboyev/newsletter/onboarding"
	"github.com/MrEshboboyev/newsletter/saga"
	"github.com/MrEshboboyev/newsletter/steps"
	"github.com/MrEshboboyev/newsletter/store/memory"
	"github.com/MrEshboboyev/newsletter/subscriber"
)

// App is the assembled onboarding application. Create one with New, call
// Start, feed it subscriptions, and Stop it on shutdown.
type App struct {
	cfg    newsletter.Config
	logger *slog.Logger

	registry    *message.Registry
	bus         *bus.Bus
	dlqService  *dlq.Service
	recorder    metrics.Recorder
	sender      mail.Sender
	subscribers subscriber.Registry

	basicStore    saga.Store[onboarding.BasicInstance]
	advancedStore saga.Store[onboarding.AdvancedInstance]
	basic         *saga.Engine[onboarding.BasicInstance]
	advanced      *saga.Engine[onboarding.AdvancedInstance]

	mws     []mw.Middleware
	closers []func(context.Context) error
}

// Option configures an App.
type Option func(*App)

// WithConfig sets the configuration. Default is newsletter.DefaultConfig().
func WithConfig(cfg newsletter.Config) Option {
	return func(a *App) { a.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRecorder sets the metrics recorder injected into the engines and the
// step handlers. Default is metrics.NewInMemory().
func WithRecorder(r metrics.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithSender sets the outbound email sender. The default is a SimSender
// with its stock latency and no injected failures.
func WithSender(s mail.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithSubscribers sets the subscriber registry backend.
func WithSubscribers(r subscriber.Registry) Option {
	return func(a *App) { a.subscribers = r }
}

// WithDLQStore sets the dead letter queue backend.
func WithDLQStore(s dlq.Store) Option {
	return func(a *App) { a.dlqService = dlq.NewService(s) }
}

// WithBasicStore sets the persistence backend for the basic workflow.
func WithBasicStore(s saga.Store[onboarding.BasicInstance]) Option {
	return func(a *App) { a.basicStore = s }
}

// WithAdvancedStore sets the persistence backend for the advanced workflow.
func WithAdvancedStore(s saga.Store[onboarding.AdvancedInstance]) Option {
	return func(a *App) { a.advancedStore = s }
}

// WithMiddleware appends middleware after the default consumer chain
// (recover, tracing, metrics, logging).
func WithMiddleware(m mw.Middleware) Option {
	return func(a *App) { a.mws = append(a.mws, m) }
}

// WithCloser registers a shutdown hook run during Stop, after the bus has
// drained. Used for store connections the App should own.
func WithCloser(fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New assembles the application. All subscriptions are registered here;
// the bus does not accept new consumers after Start.
func New(opts ...Option) (*App, error) {
	a := &App{
		cfg:    newsletter.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.recorder == nil {
		a.recorder = metrics.NewInMemory()
	}
	if a.sender == nil {
		a.sender = mail.NewSimSender(a.logger)
	}
	if a.subscribers == nil {
		a.subscribers = memory.New()
	}
	if a.dlqService == nil {
		a.dlqService = dlq.NewService(memory.New())
	}
	if a.basicStore == nil {
		a.basicStore = memory.NewSagaStore[onboarding.BasicInstance]()
	}
	if a.advancedStore == nil {
		a.advancedStore = memory.NewSagaStore[onboarding.AdvancedInstance]()
	}

	a.registry = message.NewRegistry()
	onboarding.RegisterMessages(a.registry)

	chain := []mw.Middleware{
		mw.Recover(a.logger),
		mw.Tracing(),
		mw.Metrics(),
		mw.Logging(a.logger),
	}
	chain = append(chain, a.mws...)

	a.bus = bus.New(a.logger,
		bus.WithConsumers(a.cfg.Consumers),
		bus.WithQueueSize(a.cfg.QueueSize),
		bus.WithRetry(a.cfg.MaxAttempts(), backoff.NewStepped(a.cfg.ImmediateRetries, a.cfg.RetryInterval)),
		bus.WithDLQ(a.dlqService),
		bus.WithMiddleware(chain...),
	)

	a.basic = saga.NewEngine(
		onboarding.BasicDefinition(),
		a.basicStore, a.registry, a.bus, a.recorder, a.logger,
	)
	a.advanced = saga.NewEngine(
		onboarding.AdvancedDefinition(a.cfg.EngagementEmailDelay),
		a.advancedStore, a.registry, a.bus, a.recorder, a.logger,
	)

	if err := a.subscribeAll(); err != nil {
		return nil, err
	}
	return a, nil
}

// subscribeAll registers the saga engines, the intake consumer, and every
// step handler on the bus.
func (a *App) subscribeAll() error {
	subs := []bus.Subscription{
		{
			Name:     onboarding.BasicName,
			Messages: a.basic.Definition().ConsumedMessages(),
			Handler:  a.basic.Handle,
		},
		{
			Name:     onboarding.AdvancedName,
			Messages: a.advanced.Definition().ConsumedMessages(),
			Handler:  a.advanced.Handle,
		},
		{
			Name:     "subscriber-intake",
			Messages: []string{onboarding.NameSubscribeToNewsletter},
			Handler:  subscriber.NewIntake(a.subscribers, a.bus, a.logger).Handle,
		},
		{
			Name:     steps.StepWelcomeEmail,
			Messages: []string{onboarding.NameSendWelcomeEmail},
			Handler:  steps.NewWelcomeEmailHandler(a.sender, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepFollowUpEmail,
			Messages: []string{onboarding.NameSendFollowUpEmail},
			Handler:  steps.NewFollowUpEmailHandler(a.sender, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepProfileCompletion,
			Messages: []string{onboarding.NameCompleteProfile},
			Handler:  steps.NewProfileHandler(nil, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepPreferencesSelection,
			Messages: []string{onboarding.NameSelectPreferences},
			Handler:  steps.NewPreferencesHandler(nil, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepWelcomePackage,
			Messages: []string{onboarding.NameSendWelcomePackage},
			Handler:  steps.NewWelcomePackageHandler(a.sender, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepEngagementSchedule,
			Messages: []string{onboarding.NameScheduleEngagementEmail},
			Handler:  steps.NewEngagementScheduleHandler(nil, a.bus, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepProfileCompensation,
			Messages: []string{onboarding.NameCompensateProfileCompletion},
			Handler:  steps.NewCompensateProfileHandler(nil, a.recorder, a.logger).Handle,
		},
		{
			Name:     steps.StepPreferencesCompensation,
			Messages: []string{onboarding.NameCompensatePreferencesSelection},
			Handler:  steps.NewCompensatePreferencesHandler(nil, a.recorder, a.logger).Handle,
		},
	}
	for _, sub := range subs {
		if err := a.bus.Subscribe(sub); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	return nil
}

// Start launches the bus consumers.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("onboarding app starting",
		slog.Int("consumers", a.cfg.Consumers),
		slog.Duration("engagement_delay", a.cfg.EngagementEmailDelay),
	)
	return a.bus.Start(ctx)
}

// Stop drains the bus, then runs registered closers in parallel. When ctx
// has no deadline the configured shutdown timeout applies.
func (a *App) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && a.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := a.bus.Stop(ctx); err != nil {
		a.logger.Warn("bus stop", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, closer := range a.closers {
		g.Go(func() error { return closer(ctx) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	a.logger.Info("onboarding app stopped")
	return nil
}

// ──────────────────────────────────────────────────
// Entry points
// ──────────────────────────────────────────────────

// Subscribe requests onboarding for an email address. It assigns the
// subscriber id, publishes SubscribeToNewsletter, and returns the id the
// caller can use to track both workflows.
func (a *App) Subscribe(ctx context.Context, email string) (id.SubscriberID, error) {
	subID := id.NewSubscriberID()
	env, err := message.Wrap(&onboarding.SubscribeToNewsletter{
		SubscriberID: subID,
		Email:        email,
	})
	if err != nil {
		return id.Nil, err
	}
	if err := a.bus.Publish(ctx, env); err != nil {
		return id.Nil, err
	}
	return subID, nil
}

// CompleteProfile submits a subscriber's profile. The advanced workflow
// picks up the resulting ProfileCompleted event.
func (a *App) CompleteProfile(ctx context.Context, subID id.SubscriberID, firstName, lastName string) error {
	env, err := message.Wrap(&onboarding.CompleteProfile{
		SubscriberID: subID,
		FirstName:    firstName,
		LastName:     lastName,
	})
	if err != nil {
		return err
	}
	return a.bus.Publish(ctx, env)
}

// SelectPreferences submits a subscriber's topic preferences.
func (a *App) SelectPreferences(ctx context.Context, subID id.SubscriberID, topics []string) error {
	env, err := message.Wrap(&onboarding.SelectPreferences{
		SubscriberID: subID,
		Topics:       topics,
	})
	if err != nil {
		return err
	}
	return a.bus.Publish(ctx, env)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Bus returns the underlying bus, e.g. for DLQ replay.
func (a *App) Bus() *bus.Bus { return a.bus }

// DLQ returns the dead letter service.
func (a *App) DLQ() *dlq.Service { return a.dlqService }

// Subscribers returns the subscriber registry.
func (a *App) Subscribers() subscriber.Registry { return a.subscribers }

// Recorder returns the metrics recorder.
func (a *App) Recorder() metrics.Recorder { return a.recorder }

// BasicInstance returns the stored basic-workflow record for a subscriber.
func (a *App) BasicInstance(ctx context.Context, subID id.SubscriberID) (*saga.Record[onboarding.BasicInstance], error) {
	return a.basicStore.Get(ctx, subID)
}

// AdvancedInstance returns the stored advanced-workflow record.
func (a *App) AdvancedInstance(ctx context.Context, subID id.SubscriberID) (*saga.Record[onboarding.AdvancedInstance], error) {
	return a.advancedStore.Get(ctx, subID)
}
