package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/rpc"
)

const retryDelay = 3 * time.Second

func main() {
	addr := getEnv("SERVER_ADDR", "localhost:50051")
	symbols := splitList(getEnv("SYMBOLS", "ethusdt,btcusdt,solusdt,bnbusdt"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, nil))
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer conn.Close()

	client := rpc.NewClient(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan rpc.Frame, 128)
	go watch(ctx, client, ch, logger)

	selectFn := func(ctx context.Context, sel selection.Selection) (rpc.Frame, error) {
		return client.Select(ctx, sel)
	}

	p := tea.NewProgram(
		newModel(symbols, selectFn, ch),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}

// watch keeps a Watch stream open, reconnecting after retryDelay.
func watch(ctx context.Context, client *rpc.Client, ch chan<- rpc.Frame, logger *slog.Logger) {
	for {
		err := client.Watch(ctx, func(f rpc.Frame) {
			select {
			case ch <- f:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}
		logger.Warn("watch ended, retrying", slog.Any("error", err), slog.Duration("delay", retryDelay))
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
