package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendbook/internal/app"
	"attendbook/internal/attendance"
	"attendbook/internal/config"
	"attendbook/internal/dates"
	"attendbook/internal/i18n"
	appLog "attendbook/internal/log"
	"attendbook/internal/scheduler"
	"attendbook/internal/storage"
	"attendbook/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	exportWeek string
	logLevel   string
}

func main() {
	os.Exit(run(parseFlags(), os.Stdout))
}

// run wires and runs the process and returns its exit code. Deferred
// cleanup runs before main exits.
func run(flags flagConfig, stdout io.Writer) int {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI flags override config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("attendbook starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"locale", conf.Locale,
		"week_start", conf.WeekStart,
		"storage", conf.Storage.Driver,
		"report_cron", conf.ReportCron,
		"report_dir", conf.ReportPath(),
		"basic_auth", conf.BasicAuth != nil,
	)

	kv, err := openKV(conf.Storage)
	if err != nil {
		appLog.Error("failed to open storage", err, "driver", conf.Storage.Driver)
		return 1
	}
	defer kv.Close()

	cal := dates.NewCalendar(conf.Weekday())
	gw := storage.NewGateway(kv, cal)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	state := gw.Load(loadCtx)
	cancelLoad()

	store := attendance.NewStore(cal)
	store.Restore(state)
	store.Subscribe(storage.NewPersister(gw, 5*time.Second))
	appLog.Info("state restored",
		"students", len(state.Roster),
		"weeks", len(state.Matrix),
		"selected_week", state.Selected,
	)

	a := app.New(store, i18n.New(conf.Locale))

	if flags.exportWeek != "" {
		return exportOnce(a, flags.exportWeek, stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.ReportCron != "" {
		sched, err := scheduler.New(conf.ReportCron, scheduler.NewReportJob(a, conf.ReportPath()))
		if err != nil {
			appLog.Error("failed to start scheduler", err, "report_cron", conf.ReportCron)
			return 1
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv := web.NewServer(conf, a)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		return 1
	}
	appLog.Info("attendbook exiting")
	return 0
}

func openKV(sc config.StorageConfig) (storage.KV, error) {
	switch sc.Driver {
	case config.DriverRedis:
		return storage.NewRedisKV(storage.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		})
	case config.DriverMemory:
		appLog.Warn("memory storage selected; state is lost on exit", nil)
		return storage.NewMemoryKV(), nil
	default:
		return storage.NewFileKV(sc.Dir)
	}
}

// exportOnce writes the absentee CSV of the week containing iso to w.
func exportOnce(a *app.App, iso string, w io.Writer) int {
	doc, ok := a.ExportCSV(iso)
	if !ok {
		appLog.Info("no absences to export", "week", a.Calendar.StartOfWeekISO(iso))
		return 0
	}
	if _, err := fmt.Fprintln(w, string(doc.Body)); err != nil {
		appLog.Error("failed to write export", err)
		return 1
	}
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/attendbook/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.exportWeek, "export-week", "", "Print the absentee CSV of the week containing this YYYY-MM-DD date and exit")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	flag.Parse()

	return cfg
}
