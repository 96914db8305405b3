package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/covey-io/covey"
	"github.com/covey-io/covey/broker/franz"
	"github.com/covey-io/covey/coordinator"
	coordoxia "github.com/covey-io/covey/coordinator/oxia"
	"github.com/covey-io/covey/internal/config"
	"github.com/covey-io/covey/logging"
	"github.com/covey-io/covey/metrics"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "consume":
		runConsume(os.Args[2:])
	case "offsets":
		runOffsets(os.Args[2:])
	case "version", "--version", "-version":
		fmt.Printf("covey version %s (built %s)\n", version, buildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: covey <command> [options]

Commands:
  consume     Join the consumer group and print consumed messages
  offsets     Show stored group offsets and per-partition lag
  version     Print version information

Run 'covey <command> --help' for more information on a command.`)
}

func loadConfig(fs *flag.FlagSet, args []string) *config.Config {
	configPath := fs.String("config", "", "Path to configuration file")
	group := fs.String("group", "", "Override consumer group name")
	topic := fs.String("topic", "", "Override topic")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		if *group != "" {
			os.Setenv("COVEY_GROUP", *group)
		}
		if *topic != "" {
			os.Setenv("COVEY_TOPIC", *topic)
		}
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *group != "" {
		cfg.Group.Name = *group
	}
	if *topic != "" {
		cfg.Group.Topic = *topic
	}
	return cfg
}

// openClients builds the coordinator and broker clients from config.
func openClients(ctx context.Context, cfg *config.Config, rec coordinator.MetricsRecorder) (coordinator.Client, *franz.Client, error) {
	cz, err := coordoxia.New(ctx, coordoxia.Config{
		ServiceAddress: cfg.Coordinator.Endpoint,
		Namespace:      cfg.Coordinator.Namespace,
		RequestTimeout: cfg.Coordinator.RequestTimeout(),
		SessionTimeout: cfg.Coordinator.SessionTimeout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect coordinator: %w", err)
	}

	bk, err := franz.New(franz.Config{
		Brokers:       cfg.Group.Brokers,
		ClientID:      "covey-" + uuid.NewString(),
		SocketTimeout: time.Duration(cfg.Consumer.SocketTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		_ = cz.Close()
		return nil, nil, fmt.Errorf("connect brokers: %w", err)
	}

	var client coordinator.Client = cz
	if rec != nil {
		client = coordinator.NewInstrumentedClient(cz, rec)
	}
	return client, bk, nil
}

func groupConfig(cfg *config.Config) *covey.Config {
	gc := covey.DefaultConfig()
	gc.MaxBytes = cfg.Consumer.MaxBytes
	gc.MinBytes = cfg.Consumer.MinBytes
	gc.MaxWaitMS = cfg.Consumer.MaxWaitMs
	gc.ClaimTimeout = time.Duration(cfg.Consumer.ClaimTimeoutMs) * time.Millisecond
	gc.LoopDelay = time.Duration(cfg.Consumer.LoopDelayMs) * time.Millisecond
	gc.SocketTimeout = time.Duration(cfg.Consumer.SocketTimeoutMs) * time.Millisecond
	gc.Trail = cfg.Consumer.Trail
	return gc
}

func runConsume(args []string) {
	fs := flag.NewFlagSet("consume", flag.ExitOnError)
	printValues := fs.Bool("values", false, "Print message values instead of offsets")
	cfg := loadConfig(fs, args)

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	groupMetrics := metrics.NewGroupMetrics()
	metricsServer := metrics.NewServer(cfg.Observability.MetricsAddr)
	if err := metricsServer.Start(); err != nil {
		logger.Errorf("failed to start metrics server", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cz, bk, err := openClients(ctx, cfg, groupMetrics)
	if err != nil {
		logger.Errorf("startup failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	gc := groupConfig(cfg)
	gc.Recorder = groupMetrics

	group, err := covey.NewConsumerGroup(ctx, cfg.Group.Name, bk, cz, cfg.Group.Topic, gc)
	if err != nil {
		logger.Errorf("failed to join group", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Infof("consuming", map[string]any{
		"group":  cfg.Group.Name,
		"topic":  cfg.Group.Topic,
		"member": group.MemberID(),
	})

	err = group.FetchLoop(ctx, func(partition int32, msgs []covey.Message) error {
		if partition < 0 {
			return nil
		}
		for _, m := range msgs {
			if *printValues {
				fmt.Printf("%d\t%d\t%s\n", m.Partition, m.Offset, m.Value)
			} else {
				fmt.Printf("%d\t%d\n", m.Partition, m.Offset)
			}
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Errorf("fetch loop failed", map[string]any{"error": err.Error()})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := group.Close(); err != nil {
		logger.Warnf("close failed", map[string]any{"error": err.Error()})
	}
	_ = bk.Close()
	_ = metricsServer.Stop(shutdownCtx)
}

func runOffsets(args []string) {
	fs := flag.NewFlagSet("offsets", flag.ExitOnError)
	cfg := loadConfig(fs, args)

	logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cz, bk, err := openClients(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer bk.Close()

	gc := groupConfig(cfg)
	gc.Register = false

	group, err := covey.NewConsumerGroup(ctx, cfg.Group.Name, bk, cz, cfg.Group.Topic, gc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open group: %v\n", err)
		os.Exit(1)
	}
	defer group.Close()

	partitions, err := group.Partitions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch partitions: %v\n", err)
		os.Exit(1)
	}
	if len(partitions) == 0 {
		fmt.Printf("topic %s has no available partitions\n", cfg.Group.Topic)
		return
	}

	// End offsets come from the admin API against the same seed brokers.
	adm, err := kgo.NewClient(kgo.SeedBrokers(cfg.Group.Brokers...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect admin client: %v\n", err)
		os.Exit(1)
	}
	defer adm.Close()

	endOffsets, err := kadm.NewClient(adm).ListEndOffsets(ctx, cfg.Group.Topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list end offsets: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-10s %-12s %-12s %s\n", "PARTITION", "COMMITTED", "END", "LAG")
	for _, p := range partitions {
		stored, err := group.Offset(ctx, p.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read offset for partition %d: %v\n", p.ID, err)
			os.Exit(1)
		}
		end := int64(-1)
		lag := "?"
		if lo, ok := endOffsets.Lookup(cfg.Group.Topic, p.ID); ok {
			end = lo.Offset
			lag = fmt.Sprintf("%d", end-stored)
		}
		fmt.Printf("%-10d %-12d %-12d %s\n", p.ID, stored, end, lag)
	}
}
