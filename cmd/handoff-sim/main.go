// ABOUTME: Entry point for the handoff-bridge simulator
// ABOUTME: Runs a scripted escalation end to end against the in-memory fakes

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/handoff-bridge/internal/bridge"
	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/events"
	"github.com/2389/handoff-bridge/internal/platform"
	"github.com/2389/handoff-bridge/internal/session"
	"github.com/2389/handoff-bridge/internal/statestore"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                     _       __  __      _          _     _
| |__   __ _ _ __   __| | ___ / _|/ _|    | |__  _ __(_) __| | __ _  ___
| '_ \ / _' | '_ \ / _' |/ _ \ |_| |_ ____| '_ \| '__| |/ _' |/ _' |/ _ \
| | | | (_| | | | | (_| | (_) |  _|  |____| |_) | |  | | (_| | (_| |  __/
|_| |_|\__,_|_| |_|\__,_|\___/|_| |_|     |_.__/|_|  |_|\__,_|\__, |\___|
                                                              |___/
`

// getConfigPath returns the path to the config file.
// Priority: HANDOFF_CONFIG env var > XDG_CONFIG_HOME/handoff/bridge.yaml >
// ~/.config/handoff/bridge.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HANDOFF_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bridge.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "handoff", "bridge.yaml")
}

func main() {
	configFlag := flag.String("config", "", "config file path (default: HANDOFF_CONFIG or built-in defaults)")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFlag string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", databaseLabel(cfg.Database.Path))
	fmt.Println()

	store, err := openStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	marker := &statestore.MemoryMarker{}
	bot := platform.NewFakeBot()
	chat := platform.NewFakeChat()
	chat.Survey = "https://example.com/survey/abc123"

	probe, err := session.NewWorkingHoursProbe(cfg.Availability, chat)
	if err != nil {
		return fmt.Errorf("creating availability probe: %w", err)
	}

	controller := session.NewController(cfg, bot, chat, probe, store, marker, logger)
	msgBridge := bridge.New(controller, chat, bot, cfg.Messages, logger)
	controller.SetMessageLog(msgBridge)

	bc := events.NewBroadcaster(logger)
	router := events.NewRouter(bot.Events(), chat.Events(), controller, msgBridge, bc, logger)
	controller.SetNotifier(router)

	notifications := collectNotifications(ctx, bc)

	routerDone := make(chan error, 1)
	go func() {
		routerDone <- router.Run(ctx)
	}()

	runScenario(bot, chat)

	// Both streams closed; the router drains and exits.
	if err := <-routerDone; err != nil && ctx.Err() == nil {
		return fmt.Errorf("router: %w", err)
	}

	printReport(bot, chat, notifications())
	return nil
}

func loadConfig(configFlag string) (*config.Config, string, error) {
	path := configFlag
	if path == "" {
		path = getConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && configFlag == "" {
		return config.Default(), "(built-in defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func databaseLabel(path string) string {
	if path == "" {
		return "in-memory"
	}
	return path
}

func openStore(path string) (statestore.Store, error) {
	if path == "" {
		return statestore.NewMemoryStore(), nil
	}
	return statestore.NewSQLiteStore(path)
}

// runScenario pushes a scripted escalation through both event streams: the
// user escalates, an agent joins, messages flow in both directions with
// read receipts, and the user closes the chat and gets the survey.
func runScenario(bot *platform.FakeBot, chat *platform.FakeChat) {
	bot.SetTranscript([]platform.HistoryEntry{
		{
			CreatedAt: time.Now().Add(-2 * time.Minute),
			Kind:      platform.EntryText,
			Text:      "I need help with my order",
			SenderID:  "user-42",
		},
	})

	step := func() { time.Sleep(50 * time.Millisecond) }

	bot.PushEvent(platform.BotReady{})
	step()

	bot.PushEvent(platform.BotEscalate{UserData: platform.UserData{
		UserID: "user-42",
		Name:   "Pat Doe",
		Email:  "pat@example.com",
	}})
	step()

	chat.PushEvent(platform.UserJoined{UserID: "agent-7", Name: "Alex"})
	step()

	bot.PushEvent(platform.BotInputActivity{})
	bot.PushEvent(platform.BotSendMessage{LocalID: "local-1", Text: "Hello, are you there?"})
	step()

	// History forward consumed ext-1; the live message is ext-2.
	chat.PushEvent(platform.MessageRead{ExternalID: "ext-2", ReaderID: "user-42"})
	step()

	chat.PushEvent(platform.MessageReceived{
		ExternalID: "ext-100",
		SenderID:   "agent-7",
		SenderName: "Alex",
		Text:       "Hi Pat! Let me look into that order for you.",
		SentAt:     time.Now(),
	})
	step()

	bot.PushEvent(platform.BotSelectOption{
		Option: platform.SystemOption{
			Kind:  platform.OptionKindTicket,
			Label: "Order number",
			Value: "ORD-1234",
		},
	})
	step()

	chat.PushEvent(platform.ChatClosed{ChatID: "chat-user-42"})
	step()

	bot.PushEvent(platform.BotSurveyCompleted{SurveyID: "abc123"})
	step()

	bot.CloseEvents()
	chat.CloseEvents()
}

func collectNotifications(ctx context.Context, bc *events.Broadcaster) func() []events.Notification {
	names := []string{
		events.NoteChatCreated,
		events.NoteChatClosed,
		events.NoteUserJoined,
		events.NoteUserLeft,
		events.NoteTicketCreated,
	}

	var mu sync.Mutex
	var collected []events.Notification
	var wg sync.WaitGroup

	for _, name := range names {
		ch, _ := bc.Subscribe(ctx, name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range ch {
				mu.Lock()
				collected = append(collected, n)
				mu.Unlock()
			}
		}()
	}

	return func() []events.Notification {
		bc.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		return collected
	}
}

func printReport(bot *platform.FakeBot, chat *platform.FakeChat, notifications []events.Notification) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	fmt.Println()
	cyan.Println("  Bot surface timeline")
	cyan.Println("  --------------------")
	for _, call := range bot.Calls() {
		gray.Print("    · ")
		fmt.Println(call)
	}

	fmt.Println()
	cyan.Println("  Forwarded to chat service")
	cyan.Println("  -------------------------")
	for _, text := range chat.Sent() {
		gray.Print("    · ")
		fmt.Println(text)
	}

	fmt.Println()
	cyan.Println("  Public notifications")
	cyan.Println("  --------------------")
	for _, n := range notifications {
		gray.Print("    · ")
		fmt.Printf("%s %s\n", n.Name, n.Payload)
	}
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Group names qualify attribute keys as a dotted path.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr // keys already group-qualified
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + h.qualify(a.Key) + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		newAttrs = append(newAttrs, a)
	}
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
