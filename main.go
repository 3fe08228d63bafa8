package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/app"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/llm"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/threads"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("SEEVA_CONFIG"), "path to the configuration file")
		vendor     = flag.String("provider", "", "vendor to ask (anthropic, openai, openrouter, ollama)")
		model      = flag.String("model", "", "model to use instead of the configured default")
		apiKey     = flag.String("key", "", "API key to use instead of the configured one")
		threadID   = flag.String("thread", "", "thread to append to (default: most recently used)")
		newThread  = flag.String("new", "", "start a new thread with this name")
	)
	flag.Parse()

	prompt := strings.Join(flag.Args(), " ")
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: seeva [flags] <prompt>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	a, err := app.Open(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := a.Logger

	if err := run(a, *vendor, *model, *apiKey, *threadID, *newThread, prompt); err != nil {
		logger.Error("chat failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "\nerror:", err)
		a.Close()
		os.Exit(1)
	}
	if err := a.Close(); err != nil {
		logger.Error("failed to close", zap.Error(err))
	}
}

func run(a *app.App, vendor, model, apiKey, threadID, newThread, prompt string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := a.Config.DefaultProvider()
	if vendor != "" {
		var err error
		if name, err = provider.ParseName(vendor); err != nil {
			return err
		}
	}
	if model == "" {
		model = a.Config.DefaultModel(name)
	}

	session := threads.NewSession()
	switch {
	case newThread != "":
		if _, err := a.Threads.CreateThread(session, newThread); err != nil {
			return err
		}
	case threadID != "":
		if err := a.Threads.SwitchThread(session, threadID); err != nil {
			return err
		}
	}
	id, err := a.Threads.EnsureThread(session)
	if err != nil {
		return err
	}

	_, err = a.LLM.SendMessage(ctx, llm.SendRequest{
		ThreadID: id,
		Content:  prompt,
		Provider: name,
		APIKey:   apiKey,
		Model:    model,
		Stream:   true,
	}, func(event provider.StreamEvent) error {
		switch event.Type {
		case provider.EventContentDelta:
			_, err := fmt.Fprint(os.Stdout, event.Delta)
			return err
		case provider.EventMessageStop:
			_, err := fmt.Fprintln(os.Stdout)
			return err
		}
		return nil
	})
	return err
}
