package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/orderbot/core/bootstrap"
	coreconfig "github.com/m3rciful/orderbot/core/config"
	coretelegram "github.com/m3rciful/orderbot/core/telegram"
	"github.com/m3rciful/orderbot/core/telegram/state"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(ConfigEnvVar, "/etc/orderbot.yaml")
	if got := ResolveConfigPath("local.yaml"); got != "local.yaml" {
		t.Fatalf("flag must win, got %q", got)
	}
	if got := ResolveConfigPath(""); got != "/etc/orderbot.yaml" {
		t.Fatalf("env fallback, got %q", got)
	}
}

func TestRunWiresRuntime(t *testing.T) {
	cfg := &coreconfig.Config{}
	var (
		loadedPath string
		loggerDown bool
		captured   coretelegram.RunOptions
	)
	err := Run(Options{
		ConfigPath: "bot.yaml",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			loadedPath = path
			return cfg, nil
		},
		Bootstrap: func(_ context.Context, opts bootstrap.Options) (*bootstrap.Result, error) {
			if opts.Config != cfg {
				t.Error("bootstrap received a different config")
			}
			return &bootstrap.Result{}, nil
		},
		ShutdownLogger: func() error {
			loggerDown = true
			return nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			captured = opts
			rt := coretelegram.Runtime{Store: state.NewMemoryStore()}
			if err := opts.OnStart(ctx, rt); err != nil {
				return err
			}
			return opts.OnStop(ctx, rt)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loadedPath != "bot.yaml" {
		t.Fatalf("loaded %q", loadedPath)
	}
	if captured.Config != cfg || captured.Commands == nil {
		t.Fatalf("unexpected run options %+v", captured)
	}
	if captured.Archive != nil {
		t.Fatal("archive must stay nil without a database")
	}
	if !loggerDown {
		t.Fatal("logger was not shut down")
	}
}

func TestRunStopsOnLoadError(t *testing.T) {
	boom := errors.New("missing BOT_TOKEN")
	ran := false
	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) { return nil, boom },
		RunTelegram: func(context.Context, coretelegram.RunOptions) error {
			ran = true
			return nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if ran {
		t.Fatal("bot must not start after a config error")
	}
}
