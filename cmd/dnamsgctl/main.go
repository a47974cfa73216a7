package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/api"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	scopeFlag := flag.String("in", "", "restrict search to a conversation key")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := api.NewClient(profile.SocketPath(profileName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl send <conversation> <message>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "))
	case "retry":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl retry <conversation> <ref>")
			os.Exit(1)
		}
		cmdRetry(ctx, c, args[1], args[2])
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl messages <conversation> [limit]")
			os.Exit(1)
		}
		limit := 0
		if len(args) >= 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid limit %q\n", args[2])
				os.Exit(1)
			}
			limit = n
		}
		cmdMessages(ctx, c, args[1], limit, *jsonFlag)
	case "clear":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl clear <conversation>")
			os.Exit(1)
		}
		cmdClear(ctx, c, args[1])
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl [--in <conversation>] search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, strings.Join(args[1:], " "), *scopeFlag, *jsonFlag)
	case "watch":
		namespace := ""
		if len(args) >= 2 {
			namespace = args[1]
		}
		cmdWatch(c, namespace, *jsonFlag)
	case "profiles":
		if len(args) >= 2 && args[1] == "list" {
			cmdProfilesList(*jsonFlag)
		} else {
			fmt.Fprintln(os.Stderr, "usage: dnamsgctl profiles list")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dnamsgctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                      Show engine status")
	fmt.Fprintln(os.Stderr, "  send <conv> <message>       Queue a message for delivery")
	fmt.Fprintln(os.Stderr, "  retry <conv> <ref>          Retry a failed message")
	fmt.Fprintln(os.Stderr, "  conversations               List conversations")
	fmt.Fprintln(os.Stderr, "  messages <conv> [limit]     Show a conversation")
	fmt.Fprintln(os.Stderr, "  clear <conv>                Clear a conversation")
	fmt.Fprintln(os.Stderr, "  search <query>              Full-text search the archive")
	fmt.Fprintln(os.Stderr, "  watch [namespace]           Stream engine events")
	fmt.Fprintln(os.Stderr, "  profiles list               List known profiles")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "group conversations use the group:<id> key form")
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:       %s\n", resp.Profile)
	fmt.Printf("State:         %s\n", resp.State)
	if resp.Address != "" {
		fmt.Printf("Address:       %s\n", resp.Address)
	}
	fmt.Printf("Uptime:        %ds\n", resp.UptimeSeconds)
	fmt.Printf("Queue:         %d/%d in flight\n", resp.Queue.InFlight, resp.Queue.Capacity)
	fmt.Printf("Conversations: %d\n", resp.Conversations)
	fmt.Printf("Messages:      %d\n", resp.Messages)
}

func cmdSend(ctx context.Context, c *api.Client, rawKey, content string) {
	key := conversation.ParseKey(rawKey)
	ref, err := c.Send(ctx, key.ID, key.Group, content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("queued as ref %d\n", ref)
}

func cmdRetry(ctx context.Context, c *api.Client, rawKey, rawRef string) {
	ref, err := strconv.ParseUint(rawRef, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid ref %q\n", rawRef)
		os.Exit(1)
	}
	key := conversation.ParseKey(rawKey)
	if err := c.Retry(ctx, key.ID, key.Group, ref); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("retrying ref %d\n", ref)
}

func cmdConversations(ctx context.Context, c *api.Client, jsonOut bool) {
	convs, err := c.Conversations(ctx, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range convs {
		name := conv.Name
		if name == "" {
			name = conv.Key
		}
		when := ""
		if conv.LastMessageAt > 0 {
			when = time.UnixMilli(conv.LastMessageAt).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-44s %-20s %-16s %s\n", conv.Key, name, when, conv.Preview)
	}
}

func cmdMessages(ctx context.Context, c *api.Client, rawKey string, limit int, jsonOut bool) {
	msgs, err := c.Messages(ctx, rawKey, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		suffix := ""
		if m.Outgoing && m.Status != "sent" {
			suffix = " [" + m.Status + "]"
		}
		fmt.Printf("%4d [%s] %s: %s%s\n", m.Ref, m.Timestamp, m.Sender, m.Content, suffix)
	}
}

func cmdClear(ctx context.Context, c *api.Client, rawKey string) {
	if err := c.Clear(ctx, rawKey); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("cleared")
}

func cmdSearch(ctx context.Context, c *api.Client, query, scope string, jsonOut bool) {
	hits, err := c.Search(ctx, query, scope, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(hits)
		return
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, h := range hits {
		fmt.Printf("%-44s %4d [%s] %s\n", h.Conversation, h.Ref, h.Stamp, h.Snippet)
	}
}

func cmdWatch(c *api.Client, namespace string, jsonOut bool) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := c.Events(ctx, namespace, func(kind string, data json.RawMessage) {
		if jsonOut {
			fmt.Println(string(data))
			return
		}
		fmt.Printf("%s %s %s\n", time.Now().Format("15:04:05"), kind, string(data))
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdProfilesList(jsonOut bool) {
	names, err := profile.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	type entry struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Running bool   `json:"running"`
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		running := false
		probe := api.NewClient(profile.SocketPath(name))
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if _, err := probe.Status(probeCtx); err == nil {
			running = true
		}
		probeCancel()
		entries = append(entries, entry{Name: name, Path: profile.Dir(name), Running: running})
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No profiles found.")
		return
	}
	for _, e := range entries {
		state := "stopped"
		if e.Running {
			state = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", e.Name, e.Path, state)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
