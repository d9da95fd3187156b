// Command docctl is a command-line client for the docfabric API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"docfabric/internal/client"
)

const usage = `usage: docctl [--url URL] <command> [args]

commands:
  list [--limit N] [--offset N]
  get <id>
  content <id> [--offset N] [--limit N]
  cat <id> [--window N]
  upload [--metadata KEY=VALUE]... <file>
  replace <id> <file>
  delete <id>
  download <id> [--out PATH]

The API base URL defaults to $DOCFABRIC_URL, then http://localhost:8080.
`

// metadataFlag collects repeated --metadata KEY=VALUE pairs.
type metadataFlag map[string]string

func (m metadataFlag) String() string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (m metadataFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("metadata %q must be KEY=VALUE", s)
	}
	m[k] = v
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("docctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	baseURL := global.String("url", defaultURL(), "API base URL")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	c, err := client.New(*baseURL)
	if err != nil {
		fmt.Fprintln(stderr, "docctl:", err)
		return 2
	}
	docs := client.NewDocuments(c, nil)

	cmd, rest := global.Arg(0), global.Args()[1:]
	if err := dispatch(ctx, docs, c, cmd, rest, stdout, stderr); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "docctl %s: %s\n", cmd, ue.msg)
			return 2
		}
		fmt.Fprintf(stderr, "docctl %s: %s\n", cmd, client.UserMessage(err))
		return 1
	}
	return 0
}

func defaultURL() string {
	if u := os.Getenv("DOCFABRIC_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// parseArgs parses fs and checks that exactly want positional arguments remain. Flags
// may appear before or after the positionals.
func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, usageError{err.Error()}
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != want {
		return nil, usageError{fmt.Sprintf("expected %d argument(s), got %d", want, len(positional))}
	}
	return positional, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func dispatch(ctx context.Context, docs *client.Documents, c *client.Client, cmd string, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet(cmd, stderr)
	switch cmd {
	case "list":
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "items to skip")
		if _, err := parseArgs(fs, args, 0); err != nil {
			return err
		}
		list, err := docs.List(ctx, *limit, *offset)
		if err != nil {
			return err
		}
		return printJSON(stdout, list)

	case "get":
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		doc, err := docs.Get(ctx, pos[0])
		if err != nil {
			return err
		}
		return printJSON(stdout, doc)

	case "content":
		offset := fs.Int("offset", 0, "first character")
		limit := fs.Int("limit", -1, "characters to read, negative for all")
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		content, err := docs.Content(ctx, pos[0], *offset, *limit)
		if err != nil {
			return err
		}
		return printJSON(stdout, content)

	case "cat":
		window := fs.Int("window", 64<<10, "characters per request, 0 for a single request")
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		text, err := docs.ReadAll(ctx, pos[0], *window)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, text)
		return err

	case "upload":
		meta := metadataFlag{}
		fs.Var(meta, "metadata", "KEY=VALUE, repeatable")
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		f, err := os.Open(pos[0])
		if err != nil {
			return err
		}
		defer f.Close()
		doc, err := docs.Create(ctx, filepath.Base(pos[0]), f, meta)
		if err != nil {
			return err
		}
		return printJSON(stdout, doc)

	case "replace":
		pos, err := parseArgs(fs, args, 2)
		if err != nil {
			return err
		}
		f, err := os.Open(pos[1])
		if err != nil {
			return err
		}
		defer f.Close()
		doc, err := docs.Replace(ctx, pos[0], filepath.Base(pos[1]), f)
		if err != nil {
			return err
		}
		return printJSON(stdout, doc)

	case "delete":
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		if err := docs.Delete(ctx, pos[0]); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "deleted", pos[0])
		return nil

	case "download":
		out := fs.String("out", "", "output path, - for stdout; defaults to the stored filename")
		pos, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		return download(ctx, c, pos[0], *out, stdout)
	}
	return usageError{"unknown command " + strconv.Quote(cmd)}
}

func download(ctx context.Context, c *client.Client, id, out string, stdout io.Writer) error {
	rc, filename, err := c.Download(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	if out == "-" {
		_, err = io.Copy(stdout, rc)
		return err
	}
	if out == "" {
		out = filepath.Base(filename)
		if out == "" || out == "." || out == "/" {
			out = id
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "saved", out)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
