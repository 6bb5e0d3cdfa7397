package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/no-abramov/todoapi/pkg/client"
)

const defaultServer = "http://localhost:8080"

func main() {
	server := flag.String("server", "", "API base URL (default $TODOCTL_SERVER or "+defaultServer+")")
	flag.Parse()

	if *server == "" {
		*server = os.Getenv(envServer)
	}
	if *server == "" {
		*server = defaultServer
	}

	token, err := loadToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app{
		server: *server,
		cl:     client.New(*server, token),
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	code := a.run(ctx, flag.Args())
	stop()
	os.Exit(code)
}
