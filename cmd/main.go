package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"retrievai-client/internal/citation"
	"retrievai-client/internal/config"
	"retrievai-client/internal/controller"
	"retrievai-client/internal/kv"
	"retrievai-client/internal/model"
	"retrievai-client/internal/store"
	"retrievai-client/internal/stream"
	"retrievai-client/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	var backing kv.Store
	fileStore, err := kv.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Warnf("File storage unavailable, sessions will not survive restarts: %v", err)
		backing = kv.NewMemoryStore()
	} else {
		backing = fileStore
	}

	sessions := store.New(backing, store.Options{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
	})
	defer sessions.Close()

	client := stream.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIToken, cfg.Backend.Timeout)

	ctrl := controller.New(sessions, client, sessions.GenerateID())
	defer ctrl.Close()

	fmt.Println("retrievai: type a question, or /help for commands")
	repl(ctrl, sessions)
}

func repl(ctrl *controller.Controller, sessions *store.Store) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/help":
			fmt.Println("/new /sessions /open <id> /clear /stop /quit")
		case line == "/new":
			ctrl.SetSession(sessions.GenerateID())
			fmt.Printf("session %s\n", ctrl.SessionID())
		case line == "/sessions":
			for _, sess := range sessions.ListAll() {
				fmt.Printf("%s  %2d messages  %s\n",
					sess.ID, len(sess.Messages), sess.UpdatedAt.Format(time.RFC3339))
			}
		case strings.HasPrefix(line, "/open "):
			ctrl.SetSession(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			for _, msg := range ctrl.Snapshot().Messages {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
			}
		case line == "/clear":
			ctrl.Clear()
		case line == "/stop":
			ctrl.Stop()
		case strings.HasPrefix(line, "/"):
			fmt.Println("unknown command; /help lists them")
		default:
			ask(ctrl, line)
		}
	}
}

// ask sends one question and renders the answer as it streams in.
func ask(ctrl *controller.Controller, text string) {
	before := len(ctrl.Snapshot().Messages)
	ctrl.Send(text)

	printed := 0
	status := ""
	for {
		snap := ctrl.Snapshot()

		if snap.StatusMessage != "" && snap.StatusMessage != status && printed == 0 {
			status = snap.StatusMessage
			logger.Debugf("status: %s", status)
		}
		if len(snap.StreamingMessage) > printed {
			fmt.Print(snap.StreamingMessage[printed:])
			printed = len(snap.StreamingMessage)
		}
		if !snap.IsStreaming {
			fmt.Println()
			if snap.Error != "" {
				fmt.Printf("error: %s\n", snap.Error)
			}
			printAnswer(snap, before)
			return
		}

		time.Sleep(50 * time.Millisecond)
	}
}

// printAnswer shows the finalized answer when it differs from the
// streamed view, then the sources its citation markers point at.
func printAnswer(snap controller.Snapshot, before int) {
	if len(snap.Messages) <= before+1 {
		return
	}

	final := snap.Messages[len(snap.Messages)-1]
	if final.Role != model.RoleAssistant {
		return
	}

	seen := make(map[int]bool)
	for _, seg := range citation.Parse(final.Content) {
		if !seg.Citation || seen[seg.Number] {
			continue
		}
		seen[seg.Number] = true
		if src, ok := citation.Resolve(final.Sources, seg.Number); ok {
			fmt.Printf("  [%d] %s\n", seg.Number, describeSource(src))
		}
	}
}

func describeSource(src model.Source) string {
	meta := src.Metadata
	name := meta.Source
	if meta.Title != "" {
		name = meta.Title
	}
	if meta.Page != nil {
		return fmt.Sprintf("%s, p.%d", name, *meta.Page)
	}
	return name
}
