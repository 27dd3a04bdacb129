package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quote-streamer/src/config"
	"quote-streamer/src/factories"
	"quote-streamer/src/grpc_control"
	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/quotes"
	"quote-streamer/src/server"
	"quote-streamer/src/storage"
	"quote-streamer/src/utils"
)

// -----------------------------------------------------------------------------
// Core Application Struct
// -----------------------------------------------------------------------------

// Ingestor runs the live quote stream and fans its snapshots out to the
// publishers, the quote store and the dashboard.
type Ingestor struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	Factory *factories.StreamFactory

	Quotes     *quotes.LiveQuotes
	Publishers []interfaces.IPublisher
	Store      interfaces.IQuoteStore // nil when storage is disabled
	Server     *server.QuoteServer
	Control    *grpc_control.GRPCService

	writer *storage.QuoteWriter

	mu      sync.Mutex
	started bool
	stopped bool
}

// -----------------------------------------------------------------------------

// NewIngestor builds every component from the configuration. Nothing is
// connected until Start.
func NewIngestor(config *config.Config, logger *logger.Logger) (*Ingestor, error) {
	factory := factories.NewStreamFactory(config, logger)

	live, err := factory.CreateLiveQuotes(utils.IntervalFrames{Interval: config.Stream.FrameInterval})
	if err != nil {
		return nil, fmt.Errorf("failed to create live quotes: %w", err)
	}

	pubs, err := factory.CreatePublishers()
	if err != nil {
		live.Close()
		return nil, fmt.Errorf("failed to create publishers: %w", err)
	}

	store, err := storage.NewQuoteStore(config.MConfig, logger)
	if err != nil {
		live.Close()
		return nil, fmt.Errorf("failed to create quote store: %w", err)
	}

	return &Ingestor{
		Name:       "QuoteIngestor",
		Config:     config,
		Logger:     logger,
		Factory:    factory,
		Quotes:     live,
		Publishers: pubs,
		Store:      store,
		Server:     server.NewQuoteServer(config.MConfig, logger, live, store),
	}, nil
}

// -----------------------------------------------------------------------------
// Public Lifecycle Methods
// -----------------------------------------------------------------------------

// Start connects the sinks, then applies the configured symbols and token so
// the stream opens.
func (qi *Ingestor) Start() error {
	qi.mu.Lock()
	defer qi.mu.Unlock()

	if qi.started {
		return nil
	}
	qi.Logger.Info("%s : starting quote ingestor", qi.Name)

	// 1. Connect publishers first - fail fast if one is unavailable
	for i, publisher := range qi.Publishers {
		if err := publisher.Connect(); err != nil {
			qi.disconnectPublishers(qi.Publishers[:i])
			return fmt.Errorf("failed to connect publisher %s: %w", publisher.GetName(), err)
		}
		qi.Quotes.OnSnapshot(publisher.OnSnapshot)
		qi.Logger.Info("%s : publisher %s connected", qi.Name, publisher.GetName())
	}

	// 2. Open the quote store
	if qi.Store != nil {
		if err := qi.Store.Initialize(); err != nil {
			qi.disconnectPublishers(qi.Publishers)
			return fmt.Errorf("failed to initialize quote store: %w", err)
		}
		qi.writer = storage.NewQuoteWriter(qi.Store, qi.Config.Storage.FlushInterval, qi.Logger)
		qi.writer.Start()
		qi.Quotes.OnSnapshot(qi.writer.OnSnapshot)
	}

	// 3. Control plane
	control, err := grpc_control.NewGRPCService(qi.Config.MConfig, qi.Logger, qi.Quotes)
	if err != nil {
		qi.Logger.Error("%s : gRPC health service disabled: %v", qi.Name, err)
	} else {
		qi.Control = control
		qi.Control.Start()
	}

	// 4. Dashboard
	qi.Quotes.OnSnapshot(qi.Server.Broadcast)
	go func() {
		if err := qi.Server.Start(); err != nil {
			qi.Logger.Error("%s : %v", qi.Name, err)
		}
	}()

	// 5. Open the stream
	qi.Quotes.SetSymbols(qi.Config.Symbols)
	qi.Quotes.SetToken(qi.Config.Stream.Token)

	qi.started = true
	qi.Logger.Info("%s : quote ingestor started with %d symbols", qi.Name, len(qi.Config.Symbols))
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes the stream, then drains the sinks. Idempotent.
func (qi *Ingestor) Stop(ctx context.Context) error {
	qi.mu.Lock()
	defer qi.mu.Unlock()

	if qi.stopped {
		return nil
	}
	qi.stopped = true
	qi.Logger.Info("%s : stopping quote ingestor", qi.Name)

	// Last changes reach the sinks, then no more snapshots
	qi.Quotes.Flush()
	qi.Quotes.Close()

	if qi.writer != nil {
		qi.writer.Stop()
	}
	if qi.Store != nil {
		if err := qi.Store.Close(); err != nil {
			qi.Logger.Error("%s : failed to close quote store: %v", qi.Name, err)
		}
	}

	qi.disconnectPublishers(qi.Publishers)

	if err := qi.Server.Stop(ctx); err != nil {
		qi.Logger.Error("%s : failed to stop dashboard: %v", qi.Name, err)
	}
	if qi.Control != nil {
		qi.Control.Stop(ctx)
	}

	qi.Logger.Info("%s : quote ingestor stopped", qi.Name)
	return nil
}

// -----------------------------------------------------------------------------

// StopWithTimeout is Stop bounded by timeout
func (qi *Ingestor) StopWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return qi.Stop(ctx)
}

// -----------------------------------------------------------------------------

func (qi *Ingestor) disconnectPublishers(pubs []interfaces.IPublisher) {
	for _, publisher := range pubs {
		if !publisher.IsConnected() {
			continue
		}
		if err := publisher.Disconnect(); err != nil {
			qi.Logger.Error("%s : failed to disconnect publisher %s: %v", qi.Name, publisher.GetName(), err)
		}
	}
}
