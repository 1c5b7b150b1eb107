package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"mortar/lib/aggregate"
	"mortar/lib/backend"
	"mortar/lib/errco"
	"mortar/lib/model"
	"mortar/lib/progmgr"
	"mortar/lib/servstats"
	"mortar/lib/utility"
)

// ProbeFile is the file where the status of a probed backend is written
const ProbeFile string = "test.json"

// Console executes the operator commands read from stdin
type Console struct {
	Offset  *aggregate.OffsetStore
	Cache   *backend.StatusCache
	Timeout time.Duration // backend probe timeout
	OutFile string        // file where probed statuses are written
}

// NewConsole returns a console acting on the offset store and on the backend status cache
func NewConsole(offset *aggregate.OffsetStore, cache *backend.StatusCache, timeout time.Duration) *Console {
	return &Console{
		Offset:  offset,
		Cache:   cache,
		Timeout: timeout,
		OutFile: ProbeFile,
	}
}

// GetInput is used to read input from user.
// Returns when stdin is closed.
// [goroutine]
func (c *Console) GetInput() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "» ",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
		HistoryLimit:    100,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("stats"),
			readline.PcItem("offset"),
			readline.PcItem("flush"),
			readline.PcItem("clear"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_INPUT_UNAVAILABLE, "console not available: %s", err.Error())
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			// ctrl+c on an empty line terminates mortar
			if line == "" {
				progmgr.AutoTerminate()
				return
			}
			continue
		case errors.Is(err, io.EOF):
			errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_INPUT_UNAVAILABLE, "stdin closed: console disabled")
			return
		case err != nil:
			errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_INPUT_READ, err.Error())
			continue
		}

		logMrt := c.Execute(line)
		if logMrt != nil {
			logMrt.Log(true)
		}
	}
}

// Execute executes a single command line
func (c *Console) Execute(line string) *errco.MrtLog {
	lineSplit := strings.Fields(line)
	if len(lineSplit) == 0 {
		return nil
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "user input: %s", lineSplit[:])

	switch strings.ToLower(lineSplit[0]) {
	case "exit", "quit", "end", "stop":
		progmgr.AutoTerminate()

	case "stats":
		counts := servstats.Stats.Snapshot()
		fmt.Println(utility.Boxify([]string{
			fmt.Sprintf("active connections: %d", counts.Active),
			fmt.Sprintf("status: %d  ping: %d  login: %d", counts.Status, counts.Ping, counts.Login),
			fmt.Sprintf("rejected: %d  legacy: %d  query: %d", counts.Rejected, counts.Legacy, counts.Query),
			fmt.Sprintf("aggregation errors: %d", counts.Aggregate),
			fmt.Sprintf("cached backends: %d (ttl %s)", c.Cache.Len(), c.Cache.TTL()),
			fmt.Sprintf("uptime: %s", progmgr.Uptime().Round(time.Second)),
		}))

	case "offset":
		fmt.Println(string(c.Offset.Get()))

	case "clear":
		readline.ClearScreen(readline.Stdout)

	case "flush":
		c.Cache.Flush()
		errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "backend status cache cleared")

	case "help":
		fmt.Println(utility.Boxify([]string{
			"host[:port] [version]  probe a backend and write " + c.OutFile,
			"stats                  show connection statistics",
			"offset                 show the status offset",
			"flush                  clear the backend status cache",
			"clear                  clear the screen",
			"exit                   terminate mortar",
		}))

	default:
		// probe backend: host[:port] [version]
		if len(lineSplit) > 2 {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_COMMAND_UNKNOWN, "unknown command (try \"help\")")
		}
		version := ""
		if len(lineSplit) == 2 {
			version = lineSplit[1]
		}

		host, port, logMrt := utility.SplitHostPort(lineSplit[0], 25565)
		if logMrt != nil {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_COMMAND_INPUT, "unknown command or invalid address (try \"help\"): %s", logMrt.String())
		}

		_, logMrt = Probe(model.ServerTarget{Host: host, Port: port, Version: version}, c.Timeout, c.OutFile)
		if logMrt != nil {
			return logMrt.AddTrace()
		}
	}

	return nil
}

// Probe polls target once, prints a summary and writes its status json to outFile (if not empty)
func Probe(target model.ServerTarget, timeout time.Duration, outFile string) (*backend.CachedStatus, *errco.MrtLog) {
	if target.Version == "" {
		target.Version = "1.16.5"
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, logMrt := backend.NewClient(target, backend.NewStatusCache(time.Second), timeout).Poll(ctx)
	if logMrt != nil {
		return nil, logMrt.AddTrace()
	}

	doc := res.Status.Data
	fmt.Println(utility.Boxify([]string{
		fmt.Sprintf("server:      %s", target.Addr()),
		fmt.Sprintf("version:     %s (protocol %d)", doc.Version.Name, doc.Version.Protocol),
		fmt.Sprintf("players:     %d/%d (%d in sample)", doc.Players.Online, doc.Players.Max, len(doc.Players.Sample)),
		fmt.Sprintf("description: %s", strings.ReplaceAll(doc.DescriptionText(), "\n", " ")),
	}))

	if outFile == "" {
		return res.Status, nil
	}

	out := &bytes.Buffer{}
	if err := json.Indent(out, res.Status.Raw, "", "  "); err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_JSON_MARSHAL, err.Error())
	}
	if err := os.WriteFile(outFile, out.Bytes(), 0644); err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_COMMAND_INPUT, "could not write %s: %s", outFile, err.Error())
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "status of %s written to %s", target.Addr(), outFile)

	return res.Status, nil
}
