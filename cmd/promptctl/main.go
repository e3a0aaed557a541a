package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/coolftc/prompt/internal/client"
	"github.com/coolftc/prompt/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.Dial(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	defer cancel()

	cmd := command{c: c, json: *jsonFlag}
	rest := args[1:]
	switch args[0] {
	case "status":
		cmd.status(ctx)
	case "ping":
		cmd.ping(ctx)
	case "refresh":
		cmd.refresh(ctx, rest)
	case "friends":
		cmd.friends(ctx, rest)
	case "invite":
		cmd.invite(ctx, rest)
	case "unfriend":
		cmd.unfriend(ctx, rest)
	case "prompts":
		cmd.prompts(ctx, rest)
	case "send":
		cmd.send(ctx, rest)
	case "cancel":
		cmd.cancel(ctx, rest)
	case "snooze":
		cmd.snooze(ctx, rest)
	case "push":
		cmd.push(ctx, rest)
	case "export":
		cmd.export(ctx, rest)
	case "occurrences":
		cmd.occurrences(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: promptctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show daemon status")
	fmt.Fprintln(os.Stderr, "  ping                       Check the service is reachable")
	fmt.Fprintln(os.Stderr, "  refresh [-force]           Refresh the friend list")
	fmt.Fprintln(os.Stderr, "  friends [term]             List or search friends")
	fmt.Fprintln(os.Stderr, "  invite -to <unique>        Invite someone to connect")
	fmt.Fprintln(os.Stderr, "  unfriend <acct-id>         Remove a friend")
	fmt.Fprintln(os.Stderr, "  prompts [term]             List or search prompts")
	fmt.Fprintln(os.Stderr, "  send -to <acct-id> ...     Send a prompt")
	fmt.Fprintln(os.Stderr, "  cancel <id>                Cancel a prompt")
	fmt.Fprintln(os.Stderr, "  snooze <server-id>         Snooze a received prompt")
	fmt.Fprintln(os.Stderr, "  push key=value ...         Deliver a push payload")
	fmt.Fprintln(os.Stderr, "  export [-o file]           Write upcoming prompts as iCalendar")
	fmt.Fprintln(os.Stderr, "  occurrences <id>           Show upcoming delivery times")
}

type command struct {
	c    *client.Client
	json bool
}

func (cmd command) status(ctx context.Context) {
	st, err := cmd.c.Status(ctx)
	check(err)
	if cmd.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Profile: %v\n", st["profile"])
	fmt.Printf("State:   %v\n", st["state"])
	if st["registered"] == true {
		fmt.Printf("Account: %v (%v)\n", st["name"], intOf(st["acct_id"]))
	} else {
		fmt.Println("Account: not registered")
	}
	fmt.Printf("Friends: %d\n", intOf(st["friends"]))
	fmt.Printf("Unsent:  %d\n", intOf(st["unsent"]))
	if v, ok := st["last_sync"]; ok {
		fmt.Printf("Synced:  %v\n", v)
	}
	fmt.Printf("Uptime:  %dms\n", intOf(st["uptime_ms"]))
}

func (cmd command) ping(ctx context.Context) {
	v, err := cmd.c.Ping(ctx)
	check(err)
	fmt.Printf("Service version: %s\n", v)
}

func (cmd command) refresh(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	force := fs.Bool("force", false, "ignore the debounce window")
	_ = fs.Parse(args)

	res, err := cmd.c.Refresh(ctx, *force)
	check(err)
	if cmd.json {
		outputJSON(res)
		return
	}
	if res["debounced"] == true {
		fmt.Println("Refresh skipped, last sync is recent.")
		return
	}
	fmt.Printf("Added %d, updated %d, deleted %d, failed %d in %dms\n",
		intOf(res["added"]), intOf(res["updated"]), intOf(res["deleted"]), intOf(res["failed"]), intOf(res["elapsed_ms"]))
}

func (cmd command) friends(ctx context.Context, args []string) {
	list, err := cmd.c.Friends(ctx, strings.Join(args, " "))
	check(err)
	if cmd.json {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No friends found.")
		return
	}
	for _, f := range list {
		fmt.Printf("%-8d %-24v %-32v %v\n", intOf(f["acct_id"]), f["name"], f["unique"], f["category"])
	}
}

func (cmd command) invite(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	to := fs.String("to", "", "unique name of the person to invite")
	display := fs.String("name", "", "display name")
	msg := fs.String("m", "", "invitation message")
	mirror := fs.Bool("mirror", false, "link as a mirror of this account")
	_ = fs.Parse(args)
	if *to == "" {
		usage("promptctl invite -to <unique> [-name <display>] [-m <message>] [-mirror]")
	}

	check(cmd.c.Invite(ctx, *to, *display, *msg, *mirror))
	fmt.Printf("Invitation sent to %s\n", *to)
}

func (cmd command) unfriend(ctx context.Context, args []string) {
	if len(args) != 1 {
		usage("promptctl unfriend <acct-id>")
	}
	check(cmd.c.Unfriend(ctx, parseID(args[0])))
	fmt.Println("Removed.")
}

func (cmd command) prompts(ctx context.Context, args []string) {
	list, err := cmd.c.Prompts(ctx, strings.Join(args, " "))
	check(err)
	if cmd.json {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No prompts found.")
		return
	}
	for _, p := range list {
		who := p["target"]
		if p["from"] != "" {
			who = p["from"]
		}
		fmt.Printf("%-6d %-22v %-20v %v\n", intOf(p["id"]), p["local_time"], who, p["message"])
		if r, ok := p["recurrence"].(string); ok && r != "" {
			fmt.Printf("       %s\n", r)
		}
	}
}

func (cmd command) send(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.Int64("to", 0, "account id of the recipient")
	when := fs.String("at", "", "delivery time, e.g. 2030-01-02T10:00:00.000Z")
	timeName := fs.Int("time-name", 0, "named time of day")
	timeAdj := fs.Int("time-adj", 0, "adjustment to the named time")
	msg := fs.String("m", "", "message")
	every := fs.String("every", "", "repeat unit: day, weekday or month")
	period := fs.String("period", "", "repeat period")
	days := fs.String("days", "", "comma separated weekdays for -every weekday")
	end := fs.String("end", "", "end mode: after, date or forever")
	count := fs.String("count", "", "number of repeats with -end after")
	endDate := fs.String("until", "", "last day with -end date")
	_ = fs.Parse(args)
	if *to == 0 || *msg == "" {
		usage("promptctl send -to <acct-id> -m <message> [-at <time>] [-every <unit> ...]")
	}

	req := map[string]any{
		"target":    *to,
		"when":      *when,
		"time_name": *timeName,
		"time_adj":  *timeAdj,
		"message":   *msg,
	}
	if *every != "" {
		rec := map[string]any{
			"unit":     *every,
			"period":   *period,
			"end":      *end,
			"count":    *count,
			"end_date": *endDate,
		}
		if *days != "" {
			var list []any
			for _, d := range strings.Split(*days, ",") {
				list = append(list, strings.TrimSpace(d))
			}
			rec["days"] = list
		}
		req["recurrence"] = rec
	}

	res, err := cmd.c.Send(ctx, req)
	check(err)
	if cmd.json {
		outputJSON(res)
		return
	}
	switch {
	case res["delivered"] == true:
		fmt.Printf("Sent prompt %d for %v\n", intOf(res["id"]), res["local_time"])
	case res["retry"] == true:
		fmt.Printf("Saved prompt %d, will retry: %v\n", intOf(res["id"]), res["error"])
	default:
		fmt.Printf("Prompt %d rejected: %v\n", intOf(res["id"]), res["error"])
	}
}

func (cmd command) cancel(ctx context.Context, args []string) {
	if len(args) != 1 {
		usage("promptctl cancel <id>")
	}
	check(cmd.c.Cancel(ctx, parseID(args[0])))
	fmt.Println("Canceled.")
}

func (cmd command) snooze(ctx context.Context, args []string) {
	if len(args) != 1 {
		usage("promptctl snooze <server-id>")
	}
	res, err := cmd.c.Snooze(ctx, parseID(args[0]))
	check(err)
	if cmd.json {
		outputJSON(res)
		return
	}
	fmt.Printf("Snoozed until %v\n", res["local_time"])
}

func (cmd command) push(ctx context.Context, args []string) {
	if len(args) == 0 {
		usage("promptctl push key=value ...")
	}
	payload := make(map[string]string, len(args))
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			fatal(fmt.Errorf("bad payload entry %q", kv))
		}
		payload[k] = v
	}
	res, err := cmd.c.Push(ctx, payload)
	check(err)
	outputJSON(res)
}

func (cmd command) export(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "output file (default stdout)")
	_ = fs.Parse(args)

	data, err := cmd.c.Export(ctx)
	check(err)
	if *out == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	check(os.WriteFile(*out, data, 0600))
}

func (cmd command) occurrences(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("occurrences", flag.ExitOnError)
	from := fs.String("from", "", "start of the window")
	to := fs.String("to", "", "end of the window")
	limit := fs.Int("n", 0, "maximum number of times")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usage("promptctl occurrences [-from <time>] [-to <time>] [-n <count>] <id>")
	}

	times, err := cmd.c.Occurrences(ctx, parseID(fs.Arg(0)), *from, *to, *limit)
	check(err)
	if cmd.json {
		outputJSON(times)
		return
	}
	for _, t := range times {
		fmt.Println(t)
	}
}

func intOf(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("bad id %q", s))
	}
	return id
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
