package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/odvcencio/parley/pkg/actions"
	"github.com/odvcencio/parley/pkg/backend"
	"github.com/odvcencio/parley/pkg/bus"
	"github.com/odvcencio/parley/pkg/chat"
	"github.com/odvcencio/parley/pkg/config"
	"github.com/odvcencio/parley/pkg/lifecycle"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/sched"
	"github.com/odvcencio/parley/pkg/schema"
	"github.com/odvcencio/parley/pkg/store"
	"github.com/odvcencio/parley/pkg/titles"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	idStyle     = lipgloss.NewStyle().Faint(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

func main() {
	var (
		configPath  string
		asciiMode   bool
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (default ~/.parley/config.yaml)")
	flag.BoolVar(&asciiMode, "ascii", false, "use the ASCII-art conversation class")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("parley %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.Nop()
	if cfg.LogDir != "" {
		logger, err = logging.NewLogger(cfg.LogDir, uuid.NewString())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening logs: %v\n", err)
			os.Exit(1)
		}
		defer logger.Close()
	}
	if verbose || cfg.LogLevel == "debug" {
		logger.SetMinLevel(logging.LevelDebug)
	}

	messageBus, err := buildBus(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting bus: %v\n", err)
		os.Exit(1)
	}
	defer messageBus.Close()

	ns := backend.NamespaceNormal
	if asciiMode {
		ns = backend.NamespaceASCII
	}

	clientOpts := []backend.Option{backend.WithLogger(logger)}
	if cfg.NetworkLog && cfg.LogDir != "" {
		clientOpts = append(clientOpts,
			backend.WithTransport(backend.NewLoggingTransport(nil, cfg.LogDir, true)))
	}
	client := backend.NewClient(cfg.BackendOrigin, ns, clientOpts...)
	client.SetTimeout(cfg.RequestTimeout)

	st := store.New()
	act := actions.New(st, client, messageBus, sched.Real(), logger, cfg.Titles)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := newFileAddress(addressPath(ns), logger)
	manager := lifecycle.New(act, addr, logger)
	if err := manager.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("startup: %v", err)))
	}
	defer manager.Stop()

	session := chat.NewSession(client, func() schema.ChatConfig {
		return act.Store().Config.Get()
	})
	adapter := chat.NewAdapter(session, act, logger)
	adapter.Start()
	defer adapter.Stop()

	processor := titles.NewProcessor(client, messageBus, sched.Real(), logger, cfg.Titles)
	if err := processor.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("title processor: %v", err)))
	}
	defer processor.Stop()

	if err := act.LoadSettings(ctx); err != nil {
		logger.Warn(logging.CategorySettings, "startup_load_failed", err.Error(), nil)
	}

	repl(ctx, &app{
		cfg:     cfg,
		act:     act,
		manager: manager,
		adapter: adapter,
		render:  newRenderer(),
	})
}

func buildBus(cfg *config.Config) (bus.MessageBus, error) {
	if cfg.Bus.Mode == "nats" {
		nc := bus.DefaultConfig()
		if cfg.Bus.URL != "" {
			nc.URL = cfg.Bus.URL
		}
		return bus.NewNATSBus(nc)
	}
	return bus.NewMemoryBus(), nil
}

func addressPath(ns backend.Namespace) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".parley", "last-"+ns.QueryParam())
}

// fileAddress persists the active conversation id across runs, the
// CLI's stand-in for a browser's address bar.
type fileAddress struct {
	path   string
	logger *logging.Logger

	mu    sync.Mutex
	value string
}

func newFileAddress(path string, logger *logging.Logger) *fileAddress {
	a := &fileAddress{path: path, logger: logger}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			a.value = strings.TrimSpace(string(data))
		}
	}
	return a
}

func (a *fileAddress) Get() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

func (a *fileAddress) Set(id string) {
	a.mu.Lock()
	a.value = id
	a.mu.Unlock()

	if a.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return
	}
	if err := os.WriteFile(a.path, []byte(id), 0644); err != nil {
		a.logger.Warn(logging.CategoryLifecycle, "address_persist_failed", err.Error(), nil)
	}
}

func newRenderer() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil
	}
	return r
}

type app struct {
	cfg     *config.Config
	act     *actions.Actions
	manager *lifecycle.Manager
	adapter *chat.Adapter
	render  *glamour.TermRenderer
}

func repl(ctx context.Context, a *app) {
	fmt.Println(titleStyle.Render("parley") + idStyle.Render("  /help for commands"))
	printActive(a)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, a, line); quit {
				return
			}
			continue
		}
		send(ctx, a, line)
	}
}

func send(ctx context.Context, a *app, content string) {
	st := a.act.Store()
	if !st.CanSend() {
		fmt.Println(errorStyle.Render("no conversation selected; /new or /open <id>"))
		return
	}

	if err := a.adapter.Send(ctx, content, ""); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}

	msgs := st.Messages.Get()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != schema.RoleAssistant {
		return
	}
	printMarkdown(a, last.Content)
}

func runCommand(ctx context.Context, a *app, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		printHelp()

	case "/list":
		if err := a.act.LoadConversations(ctx); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		printList(a)

	case "/new":
		id, err := a.act.CreateConversation(ctx)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		fmt.Println("created " + idStyle.Render(id))

	case "/open":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /open <id>"))
			return
		}
		if err := a.manager.Select(ctx, args[0]); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		printActive(a)

	case "/delete":
		id := a.act.Store().ActiveID.Get()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			fmt.Println(errorStyle.Render("nothing to delete"))
			return
		}
		if err := a.act.DeleteConversation(ctx, id); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		fmt.Println("deleted " + idStyle.Render(id))
		printActive(a)

	case "/title":
		id := a.act.Store().ActiveID.Get()
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			fmt.Println(errorStyle.Render("no conversation selected"))
			return
		}
		if err := a.act.GenerateTitle(ctx, id); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		printActive(a)

	case "/config":
		cfg := a.act.Store().Config.Get()
		fmt.Printf("model: %s\ntemperature: %.2f\n", cfg.ModelName, cfg.Temperature)
		if cfg.SystemDirective != "" {
			fmt.Printf("directive: %s\n", cfg.SystemDirective)
		}

	case "/model":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /model <name>"))
			return
		}
		st := a.act.Store()
		cfg := st.Config.Get()
		cfg.ModelName = args[0]
		st.Config.Set(cfg)
		saveConfig(ctx, a)

	case "/temp":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /temp <value>"))
			return
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Println(errorStyle.Render("temperature must be a number"))
			return
		}
		st := a.act.Store()
		cfg := st.Config.Get()
		cfg.Temperature = schema.ClampTemperature(v)
		st.Config.Set(cfg)
		saveConfig(ctx, a)

	case "/settings":
		if err := a.act.LoadSettings(ctx); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		s := a.act.Store().Settings.Get()
		fmt.Printf("central model: %s\napi key configured: %v\n", s.CentralModel, s.APIKeyConfigured)
		if s.TitleGenerationPrompt != "" {
			fmt.Printf("title prompt: %s\n", s.TitleGenerationPrompt)
		}

	case "/central-model":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /central-model <name>"))
			return
		}
		s := a.act.Store().Settings.Get()
		s.CentralModel = args[0]
		s.APIKey = ""
		if err := a.act.SaveSettings(ctx, s); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return
		}
		fmt.Println("saved; title refresh runs in the background")

	default:
		fmt.Println(errorStyle.Render("unknown command " + cmd))
	}
	return false
}

func saveConfig(ctx context.Context, a *app) {
	if err := a.act.SaveConfig(ctx); err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
	}
}

func printList(a *app) {
	st := a.act.Store()
	active := st.ActiveID.Get()
	for _, c := range st.Conversations.Get() {
		marker := "  "
		style := idStyle
		if c.ID == active {
			marker = activeStyle.Render("* ")
			style = activeStyle
		}
		when := ""
		if !c.LastMessageTime.IsZero() {
			when = "  " + c.LastMessageTime.Format(time.DateTime)
		}
		fmt.Printf("%s%s  %s%s\n", marker, style.Render(c.ID), c.Title, idStyle.Render(when))
	}
}

func printActive(a *app) {
	st := a.act.Store()
	if conv, ok := st.ActiveConversation(); ok {
		fmt.Println(activeStyle.Render("» "+conv.Title) + idStyle.Render("  ("+conv.ID+")"))
		return
	}
	if id := st.ActiveID.Get(); id != "" {
		fmt.Println(activeStyle.Render("» " + id))
		return
	}
	fmt.Println(idStyle.Render("no conversation selected"))
}

func printMarkdown(a *app, content string) {
	if a.render != nil {
		if out, err := a.render.Render(content); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(content)
}

func printHelp() {
	fmt.Print(`commands:
  /list                 refresh and show conversations
  /new                  create a conversation
  /open <id>            switch to a conversation
  /delete [id]          delete a conversation (default: active)
  /title [id]           regenerate a title (default: active)
  /config               show the active conversation's model config
  /model <name>         set and save the conversation model
  /temp <value>         set and save the temperature
  /settings             show application settings
  /central-model <name> set the central model (triggers title refresh)
  /quit                 exit
`)
}
