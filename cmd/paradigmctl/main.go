// Command paradigmctl is the operator CLI for background jobs.
//
//	paradigmctl [-redis addr] [-json] jobs trigger finance:sweep-expired
//	paradigmctl jobs inspect
//	paradigmctl jobs scheduled [-n 20]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs := flag.NewFlagSet("paradigmctl", flag.ContinueOnError)
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	asJSON := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cli := NewJobsCLI(*redisAddr)
	code := run(ctx, cli, fs.Args(), *asJSON, os.Stdout, os.Stderr)
	if err := cli.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, cli *JobsCLI, args []string, asJSON bool, stdout, stderr io.Writer) int {
	if len(args) < 2 || args[0] != "jobs" {
		fmt.Fprintln(stderr, "usage: paradigmctl [-redis addr] [-json] jobs <trigger TASK|inspect|scheduled [-n N]>")
		return 2
	}
	switch args[1] {
	case "trigger":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := cli.Trigger(ctx, args[2], "paradigmctl")
		if err != nil {
			fmt.Fprintln(stderr, "trigger:", err)
			return 1
		}
		return emit(stdout, asJSON, map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue}, func(w io.Writer) {
			fmt.Fprintf(w, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		})
	case "inspect":
		stats, err := cli.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(stderr, "inspect:", err)
			return 1
		}
		return emit(stdout, asJSON, stats, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			_ = tw.Flush()
		})
	case "scheduled":
		sub := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		sub.SetOutput(stderr)
		size := sub.Int("n", 10, "page size")
		if err := sub.Parse(args[2:]); err != nil {
			return 2
		}
		tasks, err := cli.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintln(stderr, "scheduled:", err)
			return 1
		}
		type row struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			At   string `json:"next_process_at"`
		}
		rows := make([]row, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, row{ID: t.ID, Type: t.Type, At: t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z")})
		}
		return emit(stdout, asJSON, rows, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Type, r.At)
			}
			_ = tw.Flush()
		})
	default:
		fmt.Fprintf(stderr, "unknown jobs command %q\n", args[1])
		return 2
	}
}

func emit(w io.Writer, asJSON bool, v any, text func(io.Writer)) int {
	if !asJSON {
		text(w)
		return 0
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
