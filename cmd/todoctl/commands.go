package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/no-abramov/todoapi/pkg/api"
	"github.com/no-abramov/todoapi/pkg/client"
)

const logsPageSize = 20

type app struct {
	server string
	cl     *client.Client
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// run dispatches a subcommand and returns the exit code (0 ok, 1 error, 2 usage).
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.printHelp()
		return 2
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		a.printHelp()
		return 0
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout()
	case "ls":
		return a.list(ctx, rest)
	case "add":
		if len(rest) == 0 {
			fail(a.errOut, "usage: todoctl add <title...>")
			return 2
		}
		return a.add(ctx, strings.Join(rest, " "))
	case "toggle":
		id, code := a.idArg("toggle", rest)
		if code != 0 {
			return code
		}
		return a.toggle(ctx, id)
	case "rm":
		id, code := a.idArg("rm", rest)
		if code != 0 {
			return code
		}
		return a.remove(ctx, id)
	case "cleanup":
		return a.cleanup(ctx)
	case "summary":
		return a.summary(ctx)
	case "logs":
		return a.logs(ctx, rest)
	case "browse":
		return a.browse(ctx)
	}

	fail(a.errOut, "unknown subcommand: "+cmd)
	a.printHelp()
	return 2
}

func (a *app) printHelp() {
	fmt.Fprint(a.out, `todoctl - command line client for the todo API

Usage:
  todoctl [-server URL] <subcommand> [args]

Subcommands:
  login [-u user] [-p password]   Get a token and cache it
  logout                          Forget the cached token
  ls [--done|--pending]           List items
  add <title...>                  Add an item
  toggle <id>                     Flip the completion flag
  rm <id>                         Delete an item (needs login)
  cleanup                         Delete every completed item
  summary                         Show item counts
  logs [page]                     Show recorded requests
  browse                          Interactive list
`)
}

func (a *app) idArg(cmd string, args []string) (int64, int) {
	if len(args) != 1 {
		fail(a.errOut, "usage: todoctl "+cmd+" <id>")
		return 0, 2
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		fail(a.errOut, cmd+": not a valid id: "+args[0])
		return 0, 2
	}
	return id, 0
}

// apiError prints err and hints at login for 401 responses.
func (a *app) apiError(op string, err error) int {
	fail(a.errOut, op+": "+err.Error())

	var se *client.StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		fmt.Fprintln(a.errOut, mutedStyle.Render("Tip: run `todoctl login` first"))
	}
	return 1
}

func (a *app) login(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	user := fs.String("u", "", "user name")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sc := bufio.NewScanner(a.in)
	prompt := func(label string, dst *string) {
		if *dst != "" {
			return
		}
		fmt.Fprint(a.out, label+": ")
		if sc.Scan() {
			*dst = strings.TrimSpace(sc.Text())
		}
	}
	prompt("Username", user)
	prompt("Password", pass)

	token, err := a.cl.Login(ctx, *user, *pass)
	if err != nil {
		return a.apiError("login", err)
	}
	if err := saveToken(a.server, token); err != nil {
		fail(a.errOut, err.Error())
		return 1
	}

	msg := "logged in as " + *user
	if exp, found := tokenExpiry(token); found {
		msg += ", token expires " + exp.Local().Format(time.DateTime)
	}
	ok(a.out, msg)
	return 0
}

func (a *app) logout() int {
	if err := removeToken(); err != nil {
		fail(a.errOut, err.Error())
		return 1
	}
	a.cl.SetToken("")
	ok(a.out, "logged out")
	return 0
}

func (a *app) list(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	done := fs.Bool("done", false, "only completed items")
	pending := fs.Bool("pending", false, "only pending items")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *done && *pending {
		fail(a.errOut, "ls: --done and --pending are exclusive")
		return 2
	}

	var filter *bool
	switch {
	case *done:
		filter = done
	case *pending:
		f := false
		filter = &f
	}

	items, err := a.cl.FilteredTodos(ctx, filter)
	if err != nil {
		return a.apiError("ls", err)
	}

	var completed int
	for _, item := range items {
		if item.IsCompleted {
			completed++
		}
	}

	lines := []string{
		countsHeader("Todos", completed, len(items)-completed),
		mutedStyle.Render(progressBar(completed, len(items), 28)),
		"",
	}
	if len(items) == 0 {
		lines = append(lines, mutedStyle.Render("nothing here"))
	}
	for _, item := range items {
		lines = append(lines, todoLine(item))
	}
	panel(a.out, lines)
	return 0
}

func (a *app) add(ctx context.Context, title string) int {
	title = strings.TrimSpace(title)
	if title == "" {
		fail(a.errOut, "add: empty title")
		return 2
	}

	item, err := a.cl.CreateTodo(ctx, api.TodoInput{Title: &title})
	if err != nil {
		return a.apiError("add", err)
	}
	ok(a.out, fmt.Sprintf("added #%d", item.ID))
	return 0
}

func (a *app) toggle(ctx context.Context, id int64) int {
	item, err := a.cl.ToggleTodo(ctx, id)
	if err != nil {
		return a.apiError("toggle", err)
	}
	state := "pending"
	if item.IsCompleted {
		state = "done"
	}
	ok(a.out, fmt.Sprintf("#%d is %s", id, state))
	return 0
}

func (a *app) remove(ctx context.Context, id int64) int {
	if err := a.cl.DeleteTodo(ctx, id); err != nil {
		return a.apiError("rm", err)
	}
	ok(a.out, fmt.Sprintf("removed #%d", id))
	return 0
}

func (a *app) cleanup(ctx context.Context) int {
	n, err := a.cl.Cleanup(ctx)
	if err != nil {
		return a.apiError("cleanup", err)
	}
	ok(a.out, fmt.Sprintf("removed %d completed item(s)", n))
	return 0
}

func (a *app) summary(ctx context.Context) int {
	s, err := a.cl.Summary(ctx)
	if err != nil {
		return a.apiError("summary", err)
	}
	panel(a.out, []string{
		countsHeader("Summary", s.CompletedTasks, s.PendingTasks),
		mutedStyle.Render(progressBar(s.CompletedTasks, s.TotalTasks, 28)),
	})
	return 0
}

func (a *app) logs(ctx context.Context, args []string) int {
	page := 1
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 1 {
			fail(a.errOut, "logs: not a valid page: "+args[0])
			return 2
		}
		page = p
	}

	p, err := a.cl.RequestLogsPage(ctx, page, logsPageSize)
	if err != nil {
		return a.apiError("logs", err)
	}

	lines := []string{
		fmt.Sprintf("%s  %s",
			titleStyle.Render("Requests"),
			mutedStyle.Render(fmt.Sprintf("page %d/%d, %d total", p.CurrentPage, p.TotalPages, p.TotalItems))),
		"",
	}
	for _, e := range p.Logs {
		lines = append(lines, fmt.Sprintf("%s %s %-7s %s %s",
			mutedStyle.Render(fmt.Sprintf("#%-5d", e.ID)),
			e.RequestTime.Local().Format(time.DateTime),
			accentStyle.Render(e.HTTPMethod),
			e.Path,
			mutedStyle.Render(e.IPAddress),
		))
	}
	panel(a.out, lines)
	return 0
}
