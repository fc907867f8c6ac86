package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lzha174/BusModel/internal/config"
	"github.com/lzha174/BusModel/internal/db"
	"github.com/lzha174/BusModel/internal/metrics"
	"github.com/lzha174/BusModel/internal/network"
	"github.com/lzha174/BusModel/internal/publisher"
	"github.com/lzha174/BusModel/internal/scenario"
	"github.com/lzha174/BusModel/internal/server"
	"github.com/lzha174/BusModel/internal/sim"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sc, err := scenario.Load(cfg.ScenarioFile)
	if err != nil {
		log.Fatalf("scenario error: %v", err)
	}
	if cfg.Seed != nil {
		sc.Seed = *cfg.Seed
	}
	if cfg.Patience != nil {
		sc.Patience = *cfg.Patience
	}

	// Optional database: run-log sink and, with NETWORK_SOURCE=db, the network source
	var store *db.Store
	if cfg.DatabaseURL != "" {
		store, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
	}

	net, err := loadNetwork(ctx, cfg, sc, store)
	if err != nil {
		log.Fatalf("network error: %v", err)
	}
	buses, passengers, err := sc.Build(net)
	if err != nil {
		log.Fatalf("scenario error: %v", err)
	}
	log.Printf("scenario %s: %d stops, %d routes, %d buses, %d passengers, seed %d",
		cfg.ScenarioFile, len(net.Stops()), len(net.Routes()), len(buses), len(passengers), sc.Seed)

	mcol := metrics.NewCollector(sc.Patience, sc.Seed)

	// Report server (run log, stored summaries, /metrics)
	var report *server.Server
	var httpSrv *http.Server
	if cfg.MetricsAddr != "" {
		var archive server.Archive
		if store != nil {
			archive = store
		}
		report = server.New(mcol.Handler(), archive)
		httpSrv = report.Serve(cfg.MetricsAddr)
	}

	opts := sc.Options()
	opts.LogEvents = cfg.LogEvents
	opts.Metrics = mcol
	s, err := sim.New(buses, passengers, opts)
	if err != nil {
		log.Fatalf("simulation error: %v", err)
	}
	runCtx, runCancel := context.WithTimeout(ctx, cfg.RunTimeout)
	rl, err := s.Run(runCtx)
	runCancel()
	if err != nil {
		if rl == nil || !(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			log.Fatalf("run error: %v", err)
		}
		log.Printf("run %s stopped early at %d: %v", rl.RunID, rl.EndTime, err)
	}

	if store != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.SaveRun(saveCtx, rl); err != nil {
			mcol.DBSaves.WithLabelValues("error").Inc()
			log.Printf("save run %s: %v", rl.RunID, err)
		} else {
			mcol.DBSaves.WithLabelValues("ok").Inc()
			log.Printf("saved run %s", rl.RunID)
		}
		saveCancel()
	}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Printf("nats error: %v", err)
		} else {
			if err := pub.PublishRun(rl); err != nil {
				log.Printf("publish run %s: %v", rl.RunID, err)
			} else {
				log.Printf("published run %s to %s.*", rl.RunID, cfg.NATSSubjectPrefix)
			}
			pub.Close()
		}
	}

	if report == nil {
		log.Println("shutdown complete")
		return
	}
	report.SetLatest(rl)

	// Keep serving the report until signalled
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Println("shutdown complete")
}

// loadNetwork reads the network from the database when configured, otherwise from
// the scenario, mirroring a file network into the database so later db runs see it.
func loadNetwork(ctx context.Context, cfg *config.Config, sc *scenario.Scenario, store *db.Store) (*network.Network, error) {
	if cfg.NetworkSource == config.SourceDB {
		return store.LoadNetwork(ctx)
	}
	net, err := sc.Network()
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.SaveNetwork(ctx, net); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
