package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matchcore/api/grpcserver"
	"matchcore/config"
	"matchcore/domain/instrument"
	"matchcore/infra/journal"
	"matchcore/infra/kafka"
	"matchcore/infra/logging"
	"matchcore/infra/outbox"
	"matchcore/infra/readmodel"
	"matchcore/infra/sequence"
	"matchcore/jobs/broadcaster"
	"matchcore/jobs/syncer"
	"matchcore/service"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	// ---------------- Config ----------------

	cfg, err := config.Load(*envFile)
	if err != nil {
		zap.NewExample().Fatal("config_invalid", zap.Error(err))
	}

	// ---------------- Logging ----------------

	log, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		zap.NewExample().Fatal("logger_init_failed", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Read-model ----------------

	var store *readmodel.Store
	if cfg.SyncEnabled {
		store, err = readmodel.Open(readmodel.Config{Driver: cfg.ReadModelDriver, DSN: cfg.ReadModelDSN}, log)
		if err != nil {
			log.Fatal("readmodel_open_failed", zap.Error(err))
		}
		defer store.Close()
	}

	// ---------------- Instruments ----------------

	instruments, err := loadInstruments(ctx, cfg.InstrumentsFile, store, log)
	if err != nil {
		log.Fatal("instruments_load_failed", zap.Error(err))
	}

	// ---------------- Journal ----------------

	j, err := journal.Open(journal.Config{
		Path:         cfg.JournalPath,
		SyncOnAppend: cfg.JournalSyncOnAppend,
	}, log)
	if err != nil {
		log.Fatal("journal_open_failed", zap.Error(err))
	}
	defer j.Close()

	// ---------------- Outbox + Sequencer ----------------

	var (
		reporter service.Reporter
		ob       *outbox.Outbox
		lastSeq  uint64
	)
	if cfg.KafkaEnabled() {
		ob, err = outbox.Open(outbox.Config{Dir: cfg.OutboxDir, Sync: cfg.OutboxSync})
		if err != nil {
			log.Fatal("outbox_open_failed", zap.Error(err))
		}
		defer ob.Close()
		if lastSeq, err = ob.LastSeq(); err != nil {
			log.Fatal("outbox_read_failed", zap.Error(err))
		}
		reporter = ob
	}
	seq := sequence.New(lastSeq)

	// ---------------- Engine ----------------

	engine, err := service.New(
		service.Config{DedupCapacity: cfg.DedupCapacity},
		instruments,
		j,
		reporter,
		seq,
		log.Named("engine"),
	)
	if err != nil {
		log.Fatal("engine_init_failed", zap.Error(err))
	}
	if _, err := engine.Recover(ctx); err != nil {
		log.Fatal("journal_replay_failed", zap.Error(err))
	}
	if err := engine.Start(context.Background()); err != nil {
		log.Fatal("engine_start_failed", zap.Error(err))
	}

	// ---------------- Background Jobs ----------------

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	var jobs sync.WaitGroup
	goJob := func(fn func()) {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			fn()
		}()
	}

	var syncStatus grpcserver.SyncStatus
	if store != nil {
		sy, err := syncer.New(syncer.Config{
			CheckpointPath: cfg.SyncCheckpointPath,
			BatchSize:      cfg.SyncBatchSize,
			PollInterval:   cfg.SyncPollInterval,
			MaxBackoff:     cfg.SyncMaxBackoff,
		}, journal.NewReader(cfg.JournalPath), store, log.Named("sync"))
		if err != nil {
			log.Fatal("sync_init_failed", zap.Error(err))
		}
		syncStatus = sy
		goJob(func() { sy.Run(jobsCtx) })
	}

	var bc *broadcaster.Broadcaster
	if ob != nil {
		producer, err := broadcaster.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatal("report_producer_failed", zap.Error(err))
		}
		bc = broadcaster.New(ob, producer, cfg.KafkaReportTopic, cfg.OutboxPublishInterval, log.Named("broadcaster"))
		goJob(func() { bc.Run(jobsCtx) })
	}

	// ---------------- Intake ----------------

	var submitter grpcserver.Submitter = engine
	var commands *kafka.CommandProducer
	var consumer *kafka.Consumer
	if cfg.KafkaIntakeEnabled {
		commands = kafka.NewCommandProducer(cfg.KafkaBrokers, cfg.KafkaCommandTopic)
		submitter = commands
		consumer = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaCommandTopic, cfg.KafkaGroupID, engine, instruments, log.Named("intake"))
		goJob(func() {
			if err := consumer.Run(jobsCtx); err != nil {
				log.Error("kafka_intake_stopped", zap.Error(err))
			}
		})
	}

	// ---------------- Metrics ----------------

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	goJob(func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", zap.Error(err))
		}
	})

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc_listen_failed", zap.Error(err))
	}
	gs := grpcserver.NewGRPCServer(grpcserver.NewServer(submitter, engine, instruments, syncStatus, log.Named("grpc")))
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc_server_exited", zap.Error(err))
		}
	}()

	log.Info("matchcore_running",
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Bool("kafka_intake", cfg.KafkaIntakeEnabled),
		zap.Bool("sync", store != nil))

	<-ctx.Done()

	// ---------------- Shutdown ----------------
	// Engine stops before the journal closes; deferred closes run after.

	log.Info("shutdown_started")
	gs.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	cancelJobs()
	jobs.Wait()
	if consumer != nil {
		_ = consumer.Close()
	}
	if commands != nil {
		_ = commands.Close()
	}
	if bc != nil {
		_ = bc.Close()
	}

	engine.Stop()
	if err := engine.Err(); err != nil {
		log.Error("engine_was_halted", zap.Error(err))
	}
	log.Info("shutdown_complete", zap.Uint64("last_report", seq.Current()))
}

// loadInstruments reads the YAML seed file and, with a read-model, upserts
// it into the instruments table and serves the table's content.
func loadInstruments(ctx context.Context, path string, store *readmodel.Store, log *zap.Logger) (*instrument.Directory, error) {
	var list []instrument.Instrument
	if _, err := os.Stat(path); err == nil {
		if list, err = instrument.LoadFile(path); err != nil {
			return nil, err
		}
	} else if store == nil {
		return nil, err
	}

	if store != nil {
		if err := store.SeedInstruments(ctx, list); err != nil {
			return nil, err
		}
		var err error
		if list, err = store.Instruments(ctx); err != nil {
			return nil, err
		}
	}

	dir, err := instrument.NewDirectory(list)
	if err != nil {
		return nil, err
	}
	log.Info("instruments_loaded", zap.Int("total", dir.Len()), zap.Int("active", len(dir.Active())))
	return dir, nil
}
