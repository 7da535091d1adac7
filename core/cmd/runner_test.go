package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	coretelegram "github.com/m3rciful/tutorbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct{ started, stopped *bool }

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { *a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { *a.stopped = true; return nil },
	}, nil
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TUTORBOT_CONFIG", "from-env.yaml")
	if p, _ := ResolveConfigPath("flag.yaml", "TUTORBOT_CONFIG", "default.yaml"); p != "flag.yaml" {
		t.Fatalf("explicit path lost: %q", p)
	}
	if p, _ := ResolveConfigPath("", "TUTORBOT_CONFIG", "default.yaml"); p != "from-env.yaml" {
		t.Fatalf("env path lost: %q", p)
	}
	t.Setenv("TUTORBOT_CONFIG", "")
	if p, _ := ResolveConfigPath("", "TUTORBOT_CONFIG", "default.yaml"); p != "default.yaml" {
		t.Fatalf("default path lost: %q", p)
	}
	if _, err := ResolveConfigPath("", "TUTORBOT_CONFIG", ""); err == nil {
		t.Fatal("expected error without any path")
	}
}

func TestRunWiresLifecycleHooks(t *testing.T) {
	var started, stopped, shut bool
	var loaded string
	err := Run(Options{
		ConfigPath: "custom.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return fakeApp{started: &started, stopped: &stopped}, nil
		},
		ShutdownLogger: func() error { shut = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaded != "custom.yaml" || !started || !stopped || !shut {
		t.Fatalf("loaded=%q started=%v stopped=%v shut=%v", loaded, started, stopped, shut)
	}
}

func TestRunReportsBootstrapFailure(t *testing.T) {
	boom := errors.New("boom")
	err := Run(Options{
		ConfigPath: "x.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
