package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/coc"
	"main/internal/credential"
	"main/internal/donation"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/store"
	"main/internal/tracker"
)

const defaultDataDir = "data"

func main() {
	if err := run(); err != nil {
		logs.Errorf("tracker: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	metricsInterval := flag.Duration("metrics-interval", time.Minute, "Metrics log interval (0=disable)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if loaded.Profiling.Enable {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "clan-tracker",
			ServerAddress:   loaded.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	kv, cleanup, err := buildStore(loaded.Storage)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := obs.NewMetrics()
	probe := credential.NewIPProbe(loaded.IPDetectURL, nil)
	selector := credential.NewSelector(loaded.Credentials, probe, loaded.IPCacheTTL, loaded.IPCacheTTL)
	api := coc.NewClient(loaded.API, &http.Client{Timeout: loaded.API.Timeout}, selector, metrics)

	queue := event.NewQueue(loaded.QueueSize, metrics)
	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		sink := event.LogSink{}
		queue.Run(ctx, sink.Emit)
	}()

	engine := donation.NewEngine(ctx, kv)
	registry := tracker.NewRegistry(api, kv, queue, loaded.Runner)
	for _, clan := range loaded.Clans {
		if err := registry.Track(ctx, clan); err != nil {
			registry.StopAll()
			return err
		}
	}

	loopCtx, loopCancel := context.WithCancel(ctx)
	defer loopCancel()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		tracker.RunWarReminders(loopCtx, registry, api, queue)
	}()
	go func() {
		defer loops.Done()
		tracker.RunMonthlySnapshots(loopCtx, registry, api, engine, queue, loaded.SnapshotDay)
	}()
	if *metricsInterval > 0 {
		go logMetrics(ctx, metrics, *metricsInterval)
	}

	logs.Infof("tracker started: clans=%d credentials=%d", len(loaded.Clans), len(loaded.Credentials))

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	}

	// stop every producer before closing the queue so no publish can race
	// the close
	logs.Info("shutting down")
	registry.StopAll()
	loopCancel()
	loops.Wait()
	queue.Close()
	consumer.Wait()
	return nil
}

// buildStore picks Postgres when a DSN is configured and the local file
// backend otherwise.
func buildStore(cfg ops.StorageConfig) (store.KV, func(), error) {
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPGStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logs.Info("persistence: postgres")
		return pg, func() { _ = pg.Close() }, nil
	}

	dir := cfg.DataDir
	if dir == "" {
		dir = defaultDataDir
	}
	fs, err := store.NewFileStore(dir)
	if err != nil {
		return nil, nil, err
	}
	logs.Infof("persistence: %s", dir)
	return fs, func() {}, nil
}

func logMetrics(ctx context.Context, metrics *obs.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := metrics.Snapshot()
			logs.Infof("metrics: hits=%d misses=%d coalesced=%d upstream=%d failovers=%d not_found=%d failures=%d drops=%d fetch_avg=%s",
				s.CacheHits, s.CacheMisses, s.CoalescedWaits, s.UpstreamCalls,
				s.Failovers, s.NotFound, s.FetchFailures, s.QueueDrops, s.FetchLatency.Avg)
		}
	}
}
