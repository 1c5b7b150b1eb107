package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"mortar/lib/aggregate"
	"mortar/lib/backend"
	"mortar/lib/config"
	"mortar/lib/conn"
	"mortar/lib/errco"
	"mortar/lib/input"
	"mortar/lib/model"
	"mortar/lib/progmgr"
	"mortar/lib/utility"
	"mortar/lib/webapi"
)

// contains intro to program
var intro []string = []string{
	"                      _             ",
	" _ __ ___   ___  _ __| |_ __ _ _ __ ",
	"| '_ ` _ \\ / _ \\| '__| __/ _` | '__|",
	"| | | | | | (_) | |  | || (_| | |   ",
	"|_| |_| |_|\\___/|_|   \\__\\__,_|_|   " + progmgr.MrtVersion,
	"aggregated minecraft server list ping",
}

// errLogged is returned by commands whose failure was already logged
var errLogged = errors.New("mortar failed")

var rootCmd = &cobra.Command{
	Use:           "mortar",
	Short:         "Answer minecraft server list pings with the players of many servers",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logMrt := serve(cmd)
		if logMrt != nil {
			logMrt.Log(true)
			return errLogged
		}
		return nil
	},
}

var probeVersion string
var probeTimeout time.Duration
var probeOut string

var probeCmd = &cobra.Command{
	Use:          "probe host[:port]",
	Short:        "Poll the status of a minecraft server once",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, port, logMrt := utility.SplitHostPort(args[0], 25565)
		if logMrt != nil {
			logMrt.Log(true)
			return errLogged
		}

		_, logMrt = input.Probe(model.ServerTarget{Host: host, Port: port, Version: probeVersion}, probeTimeout, probeOut)
		if logMrt != nil {
			logMrt.Log(true)
			return errLogged
		}
		return nil
	},
}

func init() {
	config.Flags(rootCmd.Flags())

	probeCmd.Flags().StringVar(&probeVersion, "version", "", "Minecraft version of the server (default 1.16.5).")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 3*time.Second, "Time allowed for the status exchange.")
	probeCmd.Flags().StringVarP(&probeOut, "output", "o", input.ProbeFile, "File where the status json is written (empty to skip).")
	rootCmd.AddCommand(probeCmd)
}

func main() {
	// join os provided args and split them again with shlex.
	// (this prevents badly splitted arguments on pterodactyl panel)
	args, err := shlex.Split(strings.Join(os.Args[1:], " "))
	if err != nil {
		errco.NewLogln(errco.TYPE_ERR, errco.LVL_0, errco.ERROR_PARSE, err.Error())
		os.Exit(1)
	}
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errLogged) {
			errco.NewLogln(errco.TYPE_ERR, errco.LVL_0, errco.ERROR_PARSE, err.Error())
		}
		os.Exit(1)
	}
}

// serve loads the configuration and answers clients until mortar is terminated
func serve(cmd *cobra.Command) *errco.MrtLog {
	// print program intro
	// not using errco.NewLogln since log time is not needed
	fmt.Println(utility.Boxify(intro))

	// load configuration from mortar config file
	logMrt := config.LoadConfig(cmd.Flags())
	if logMrt != nil {
		return logMrt.AddTrace()
	}
	cfg := config.ConfigRuntime

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "instance id: %s", config.InstanceID)

	// launch mortar manager
	go progmgr.MrtMgr()

	// backend statuses and http api
	cache := backend.NewStatusCache(time.Duration(cfg.Backend.CacheTTL) * time.Second)
	pool := backend.NewPool(cfg.ServerList, cache, time.Duration(cfg.Backend.Timeout)*time.Millisecond)
	offset := aggregate.NewOffsetStore()

	web := webapi.NewServer(pool, offset, config.ServerIcon, progmgr.Health)
	_, logMrt = web.ListenAndServe(net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)))
	if logMrt != nil {
		return logMrt.AddTrace()
	}
	progmgr.OnExit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		web.Shutdown(ctx)
	})

	fetcher := aggregate.NewFetcher(cfg.AggregationURL(), config.ServerIcon, time.Duration(cfg.Web.AggregationTimeout)*time.Millisecond)

	// open a listener
	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Mortar.ListenHost, strconv.Itoa(cfg.Mortar.ListenPort)))
	if err != nil {
		progmgr.AutoTerminate()
		<-progmgr.Done()
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_0, errco.ERROR_CLIENT_LISTEN, err.Error())
	}
	progmgr.OnExit(func() { listener.Close() })

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "listening for new clients to connect on %s ...", listener.Addr().String())

	go func() {
		logMrt := conn.NewResponder(fetcher, time.Duration(cfg.Mortar.ReadTimeout)*time.Second).Serve(listener)
		if logMrt != nil {
			logMrt.Log(true)
		}
	}()

	// udp query responder
	if cfg.Mortar.QueryPort != 0 {
		connCli, logMrt := conn.ListenQuery(cfg.Mortar.ListenHost, cfg.Mortar.QueryPort)
		if logMrt != nil {
			logMrt.Log(true)
		} else {
			progmgr.OnExit(func() { connCli.Close() })
			go conn.NewQueryResponder(fetcher, progmgr.MrtVersion, cfg.Mortar.ListenHost, cfg.Mortar.ListenPort).HandlerQuery(connCli)
		}
	}

	// SIGUSR1 clears the backend status cache
	progmgr.OnUserSignal(func() {
		cache.Flush()
		errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "backend status cache cleared (%d backends)", len(cfg.ServerList))
	})

	// launch GetInput()
	go input.NewConsole(offset, cache, time.Duration(cfg.Backend.Timeout)*time.Millisecond).GetInput()

	<-progmgr.Done()

	return nil
}
