// Command storefront is a command-line consumer of the storefront API.
// It keeps the session in a file (or Redis when REDIS_URL is set) so that
// successive invocations share one login.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Sternrassler/storefront-client/internal/config"
	"github.com/Sternrassler/storefront-client/pkg/cache"
	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/session"
	"github.com/Sternrassler/storefront-client/pkg/storefront"
)

const usage = `Usage: storefront [flags] <command> [args]

Commands:
  login <email> <password>       log in and store the session
  logout                         clear the stored session
  whoami [-remote]               show the stored session (or ask the backend)
  status                         show the operational status
  products [id]                  list products or show one
  licenses [id]                  list licenses or show one
  get|delete <endpoint>          raw request against /api<endpoint>
  post|put|patch <endpoint> [json]

Flags:
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realMain(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for usage errors, as with flag.ExitOnError, and 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", ".env", "dotenv file to load")
	apiURL := fs.String("api", "", "override STOREFRONT_API_URL")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *verbose {
		cfg.LogLevel = string(logging.LevelDebug)
	}

	logging.Setup(logging.Config{
		Level:   logging.Level(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  stderr,
		Service: "storefront-cli",
	})

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	sf, err := compose(ctx, cfg, storage)
	if err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	return run(ctx, sf, fs.Args(), stdout)
}

// openStorage picks Redis when configured, otherwise the session file.
func openStorage(ctx context.Context, cfg *config.Config) (session.Storage, func(), error) {
	if cfg.RedisURL != "" {
		rs, err := session.NewRedisStorageFromURL(ctx, cfg.RedisURL, session.DefaultRedisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("session storage: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	return session.NewFileStorage(cfg.SessionFile), func() {}, nil
}

func compose(ctx context.Context, cfg *config.Config, storage session.Storage) (*storefront.Storefront, error) {
	store := session.NewStore(ctx, storage, logging.NewLogger("session"))

	manager := cache.NewManager(
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logging.NewLogger("cache")),
	)

	c, err := client.New(client.Config{
		BaseURL:   cfg.APIURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		Session:   store,
		Cache:     manager,
	})
	if err != nil {
		return nil, err
	}
	return storefront.New(c), nil
}

func run(ctx context.Context, sf *storefront.Storefront, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "login":
		if len(rest) != 2 {
			return fmt.Errorf("%w: login <email> <password>", errUsage)
		}
		sess, err := sf.Auth.Login(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s (%s)\n", displayName(sess), sess.UserType)
		return nil

	case "logout":
		sf.Auth.Logout(ctx)
		fmt.Fprintln(out, "Logged out")
		return nil

	case "whoami":
		return whoami(ctx, sf, rest, out)

	case "status":
		status, err := sf.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", status.Status)
		for _, svc := range status.Services {
			line := fmt.Sprintf("  %-20s %s", svc.Name, svc.Status)
			if svc.Message != "" {
				line += " (" + svc.Message + ")"
			}
			fmt.Fprintln(out, line)
		}
		return nil

	case "products":
		return show(ctx, sf.Products, rest, out)

	case "licenses":
		return show(ctx, sf.Licenses, rest, out)

	case "get", "post", "put", "patch", "delete":
		return raw(ctx, sf.Client(), strings.ToUpper(cmd), rest, out)
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func whoami(ctx context.Context, sf *storefront.Storefront, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	remote := fs.Bool("remote", false, "fetch the profile from the backend")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	sess := sf.Client().Session().Current()
	if !sess.Active() {
		fmt.Fprintln(out, "Not logged in")
		return nil
	}

	if *remote {
		profile, err := sf.Auth.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, profile)
	}

	fmt.Fprintf(out, "%s (%s)\n", displayName(sess), sess.UserType)
	return nil
}

func show(ctx context.Context, r *storefront.Resource, args []string, out io.Writer) error {
	var (
		payload json.RawMessage
		err     error
	)
	if len(args) > 0 {
		payload, err = r.Get(ctx, args[0])
	} else {
		payload, err = r.List(ctx, nil)
	}
	if err != nil {
		return err
	}
	return printJSON(out, payload)
}

func raw(ctx context.Context, c *client.Client, method string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: %s <endpoint> [json]", errUsage, strings.ToLower(method))
	}

	opts := client.RequestOptions{Method: method}
	if len(args) > 1 {
		if method == http.MethodGet || method == http.MethodDelete {
			return fmt.Errorf("%w: %s takes no body", errUsage, strings.ToLower(method))
		}
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("%w: body is not valid JSON", errUsage)
		}
		opts.Body = json.RawMessage(args[1])
	}

	payload, err := c.Do(ctx, args[0], opts)
	if err != nil {
		return err
	}
	return printJSON(out, payload)
}

func printJSON(out io.Writer, v any) error {
	data, ok := v.(json.RawMessage)
	if !ok {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func displayName(sess session.Session) string {
	for _, field := range []string{"name", "username", "email"} {
		if v := sess.Profile.String(field); v != "" {
			return v
		}
	}
	return "unknown user"
}
