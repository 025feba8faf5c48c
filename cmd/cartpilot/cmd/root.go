package cmd

import (
	"context"
	"fmt"
	"os"

	"cartpilot/job"
	jobdb "cartpilot/job/db"
	"cartpilot/lib/configutil"
	configlibsql "cartpilot/lib/configutil/libsql"
	"cartpilot/lib/restyutil"
	"cartpilot/lib/telemetry"
	"cartpilot/lib/util/serviceutil"
	"cartpilot/notify"
	"cartpilot/orchestrator"
	"cartpilot/orchestrator/pageagent"
	"cartpilot/store"
	"cartpilot/store/barbora"
	"cartpilot/store/iki"

	"github.com/spf13/cobra"
)

type Config struct {
	Database configlibsql.Struct `json:"database"`
	Port     int                 `json:"port"`
	// directory for raw http request/response dumps, empty disables
	HttpDumpDir string `json:"http_dump_dir"`
	Stores      struct {
		BarboraUrl string `json:"barbora_url"`
		IkiUrl     string `json:"iki_url"`
	} `json:"stores"`
	Report struct {
		WebhookUrl string            `json:"webhook_url"`
		Smtp       notify.SmtpConfig `json:"smtp"`
		EmailTo    []string          `json:"email_to"`
	} `json:"report"`
}

var configPath string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cartpilot",
	Short: "cartpilot fills grocery carts and compares prices across Lithuanian online stores.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cartpilot.json5", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup builds the full pipeline: job store, store registry, page
// agent, orchestrator, report sinks. The returned orchestrator is
// already running on its own goroutine.
func setup(ctx context.Context) (*orchestrator.Orchestrator, Config) {
	telemetry.InitSlog(verbose)

	config, err := configutil.ReadConfig[Config](configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	err = telemetry.SetupFromEnv(ctx, "cartpilot")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	if config.HttpDumpDir != "" {
		output := restyutil.NewFilesystemOutput(config.HttpDumpDir)
		barbora.SetRestyInstrumentOutput(output)
		iki.SetRestyInstrumentOutput(output)
	}

	db, err := config.Database.OpenDB(jobdb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	registry := store.NewRegistry()
	registry.Register("barbora", func() (store.Adapter, error) {
		return barbora.New(barbora.Options{BaseUrl: config.Stores.BarboraUrl})
	})
	registry.Register("iki", func() (store.Adapter, error) {
		return iki.New(iki.Options{BaseUrl: config.Stores.IkiUrl})
	})

	var sinks notify.Multi
	sinks = append(sinks, notify.LogSink{})
	if config.Report.WebhookUrl != "" {
		sinks = append(sinks, notify.NewWebhook(config.Report.WebhookUrl))
	}
	if config.Report.Smtp.Server != "" && len(config.Report.EmailTo) > 0 {
		sinks = append(sinks, notify.NewEmail(config.Report.Smtp, config.Report.EmailTo))
	}

	agent := pageagent.New(registry, nil)
	orch := orchestrator.New(jobdb.NewStore(db), agent, sinks, orchestrator.Options{})
	agent.SetDispatcher(orch)

	go func() {
		_ = orch.Run(ctx)
	}()

	return orch, config
}

// readItems turns positional args, or lines of a list file, into job
// items.
func readItems(args []string, listPath string) ([]job.Item, error) {
	names := args
	if listPath != "" {
		contents, err := os.ReadFile(listPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read item list: %w", err)
		}
		names = append(names, splitLines(string(contents))...)
	}

	var items []job.Item
	for _, name := range names {
		if name == "" {
			continue
		}
		items = append(items, job.Item{Name: name})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items given")
	}
	return items, nil
}
