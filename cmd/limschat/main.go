// Command limschat is an interactive terminal client for the irdop.org
// laboratory chat backend. It keeps the full conversation state locally:
// reply chains, branch navigation, paged history and the session mirror.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/irdop/limschat/internal/api"
	"github.com/irdop/limschat/internal/config"
	"github.com/irdop/limschat/internal/model/chat"
	"github.com/irdop/limschat/internal/service/conversation"
	"github.com/irdop/limschat/internal/service/directory"
	"github.com/irdop/limschat/internal/service/session"
	"github.com/irdop/limschat/internal/service/transport"
)

const defaultShareBase = "https://irdop.org/chat"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link := flag.String("link", "", "shared conversation link to reopen (carries contextId and messageId)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	seed := *link
	if seed == "" {
		seed = defaultShareBase
	}
	locator, err := conversation.NewURLLocator(seed)
	if err != nil {
		log.Fatalf("invalid link %q: %v", seed, err)
	}

	client := api.NewClient(cfg.Client.BackendURL, cfg.Client.AppID,
		api.WithUploadURL(cfg.Client.UploadURL))

	store := conversation.New(client,
		conversation.WithPageSize(cfg.Client.PageSize),
		conversation.WithLocator(locator))
	sessions := session.New()
	store.Subscribe(sessions)

	dir := directory.New(client)
	defer dir.Close()
	store.Subscribe(dir)

	store.Subscribe(printer{})

	var ws *transport.WSClient
	var senderOpts []transport.Option
	if cfg.Client.WebSocketEnabled {
		ws = transport.NewWSClient(cfg.Client.WebSocketURL)
		senderOpts = append(senderOpts, transport.WithConn(ws))
	}
	sender := transport.NewSender(store, sessions, client, cfg.Client.Model, cfg.Client.AppID, senderOpts...)

	if ws != nil {
		ws.OnMessage(sender.HandleInbound)
		ws.OnStatus(func(st transport.Status) {
			log.Printf("[ws] status: %s", st)
		})
		if err := ws.Connect(ctx); err != nil {
			log.Printf("warning: websocket unavailable (%v), continuing over HTTP", err)
		}
		defer ws.Close()
	}

	dir.LoadContexts(ctx)

	// A pasted link reopens its conversation before the prompt appears.
	if ctxID := locator.ContextID(); ctxID != "" {
		openFromLink(ctx, store, client, locator, ctxID)
	}

	repl(ctx, app{
		store:   store,
		client:  client,
		dir:     dir,
		sender:  sender,
		locator: locator,
	})
}

// openFromLink restores the conversation a shared link points at, anchored
// at a branch message when the link carries one.
func openFromLink(ctx context.Context, store *conversation.Store, client *api.Client, locator *conversation.URLLocator, contextID string) {
	if msgID := locator.MessageID(); msgID != "" {
		if err := store.NavigateToMessage(ctx, contextID, msgID); err != nil {
			log.Printf("warning: could not open linked branch: %v", err)
		}
		return
	}

	contextData, err := client.GetContext(ctx, contextID, "")
	if err != nil {
		log.Printf("warning: could not open linked conversation: %v", err)
		return
	}
	if err := store.SwitchContext(ctx, &contextData); err != nil {
		log.Printf("warning: could not load linked conversation: %v", err)
	}
}

type app struct {
	store   *conversation.Store
	client  *api.Client
	dir     *directory.Directory
	sender  *transport.Sender
	locator *conversation.URLLocator
}

func repl(ctx context.Context, a app) {
	fmt.Println("limschat ready. Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
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

		if !strings.HasPrefix(line, "/") {
			if err := a.sender.Send(ctx, transport.SendOptions{Text: line}); err != nil {
				log.Printf("send failed: %v", err)
			}
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "/quit", "/exit":
			return
		case "/help":
			printHelp()
		case "/contexts":
			for _, c := range a.dir.LoadContexts(ctx) {
				fmt.Printf("  %s  %s\n", c.ContextID, c.Title)
			}
		case "/switch":
			a.switchContext(ctx, rest)
		case "/new":
			if err := a.store.SwitchContext(ctx, nil); err != nil {
				log.Printf("new conversation failed: %v", err)
			}
			fmt.Println("started a new conversation")
		case "/history":
			printWindow(a.store.Messages())
		case "/more":
			if !a.store.HasMore() {
				fmt.Println("no older history")
				continue
			}
			if err := a.store.LoadMoreMessages(ctx); err != nil {
				log.Printf("loading history failed: %v", err)
				continue
			}
			printWindow(a.store.Messages())
		case "/reply":
			a.reply(ctx, rest)
		case "/retry":
			a.store.RetryLastMessage(ctx)
		case "/attach":
			a.attach(ctx, rest)
		case "/branches":
			a.branches(ctx, rest)
		case "/branch":
			a.branch(ctx, rest)
		case "/link":
			fmt.Println(a.locator.Link())
		default:
			fmt.Printf("unknown command %s, try /help\n", cmd)
		}
	}
}

func (a app) switchContext(ctx context.Context, contextID string) {
	if contextID == "" {
		fmt.Println("usage: /switch <contextId>")
		return
	}
	contextData, err := a.client.GetContext(ctx, contextID, "")
	if err != nil {
		log.Printf("switch failed: %v", err)
		return
	}
	if err := a.store.SwitchContext(ctx, &contextData); err != nil {
		log.Printf("switch failed: %v", err)
		return
	}
	printWindow(a.store.Messages())
}

func (a app) reply(ctx context.Context, rest string) {
	msgID, text, _ := strings.Cut(rest, " ")
	text = strings.TrimSpace(text)
	if msgID == "" || text == "" {
		fmt.Println("usage: /reply <messageId> <text>")
		return
	}
	if err := a.sender.Send(ctx, transport.SendOptions{Text: text, ReplyTo: msgID}); err != nil {
		log.Printf("send failed: %v", err)
	}
}

func (a app) attach(ctx context.Context, rest string) {
	path, text, _ := strings.Cut(rest, " ")
	text = strings.TrimSpace(text)
	if path == "" || text == "" {
		fmt.Println("usage: /attach <path> <text>")
		return
	}

	attachment, err := a.client.UploadFile(ctx, path, func(percent int) {
		fmt.Printf("\ruploading %s... %d%%", path, percent)
	})
	fmt.Println()
	if err != nil {
		log.Printf("upload failed: %v", err)
		return
	}

	err = a.sender.Send(ctx, transport.SendOptions{
		Text:  text,
		Files: []chat.Attachment{attachment},
	})
	if err != nil {
		log.Printf("send failed: %v", err)
	}
}

// branches lists the alternative continuations recorded at a message.
func (a app) branches(ctx context.Context, msgID string) {
	if msgID == "" {
		fmt.Println("usage: /branches <messageId>")
		return
	}
	msgs, err := a.client.GetMessages(ctx, []string{msgID})
	if err != nil || len(msgs) == 0 {
		log.Printf("could not load message %s: %v", msgID, err)
		return
	}
	if len(msgs[0].RepByMessIDs) == 0 {
		fmt.Println("no branches recorded at this message")
		return
	}
	for i, id := range msgs[0].RepByMessIDs {
		fmt.Printf("  [%d] %s\n", i+1, id)
	}
}

// branch reopens the conversation along the branch containing the given
// message.
func (a app) branch(ctx context.Context, msgID string) {
	if msgID == "" {
		fmt.Println("usage: /branch <messageId>")
		return
	}
	if err := a.store.NavigateToMessage(ctx, a.store.ContextID(), msgID); err != nil {
		log.Printf("branch navigation failed: %v", err)
		return
	}
	printWindow(a.store.Messages())
}

// printer echoes live additions to the terminal.
type printer struct{}

func (printer) MessageAdded(msg chat.Message) {
	fmt.Println(formatMessage(msg))
}

func (printer) ContextBound(contextID string) {
	fmt.Printf("(conversation bound to %s)\n", contextID)
}

func (printer) ContextSwitched(string) {}

func printWindow(msgs []chat.Message) {
	if len(msgs) == 0 {
		fmt.Println("(empty conversation)")
		return
	}
	for _, m := range msgs {
		fmt.Println(formatMessage(m))
	}
}

func formatMessage(m chat.Message) string {
	tag := m.Role
	if m.IsError {
		tag = "error"
	}
	id := m.MessageID
	if chat.IsTempID(id) {
		id = "pending"
	}
	out := fmt.Sprintf("[%s] %s  (%s)", tag, m.Content, id)
	for _, f := range m.Attachments {
		out += fmt.Sprintf("\n    attachment: %s (%s)", f.OriginInfo.FileName, f.OpaiFileID)
	}
	return out
}

func printHelp() {
	fmt.Print(`commands:
  /contexts              list conversations
  /switch <contextId>    open a conversation
  /new                   start a fresh conversation
  /history               print the loaded window
  /more                  page in older history
  /reply <messageId> <text>  reply to an earlier message (forks a branch)
  /branches <messageId>  list branch siblings recorded at a message
  /branch <messageId>    reopen the branch containing a message
  /retry                 resend the last message after a failure
  /attach <path> <text>  upload a file and send it with a message
  /link                  print the shareable link for the current view
  /quit                  exit
`)
}
