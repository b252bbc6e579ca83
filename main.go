package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jsonjoin/internal/app"
	"jsonjoin/internal/config"
	_ "jsonjoin/internal/etl/sources"
)

const version = "1.0.0"

const usage = `usage: jsonjoin <command> [flags]

commands:
  run     join two JSON files and print the totals line
  serve   run stored join jobs on their schedule and file triggers
  mcp     serve the MCP tools on stdin/stdout

run "jsonjoin <command> -h" for command flags.
`

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runCmd(args)
	case "serve":
		err = serveCmd(args)
	case "mcp":
		err = mcpCmd(args)
	case "version", "-version", "--version":
		fmt.Println("jsonjoin", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("jsonjoin %s: %v", cmd, err)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", config.DefaultPath, "INI configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	left := fs.String("left", "", "left JSON file (default from config: customers.json)")
	right := fs.String("right", "", "right JSON file (default from config: orders.json)")
	leftKey := fs.String("left-key", "", "integer key field in the left file (default cid)")
	rightKey := fs.String("right-key", "", "integer key field in the right file (default customer_id)")
	names := fs.String("names", "", "comma-separated names to total (default Barry,Steve)")
	out := fs.String("out", "", "write the joined rows to this JSON file")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	opts := app.RunOptionsFrom(cfg)
	if *left != "" {
		opts.Join.LeftFile = *left
	}
	if *right != "" {
		opts.Join.RightFile = *right
	}
	if *leftKey != "" {
		opts.Join.LeftKey = *leftKey
	}
	if *rightKey != "" {
		opts.Join.RightKey = *rightKey
	}
	if *names != "" {
		opts.Report.Names = config.SplitList(*names)
	}
	opts.Out = *out

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := app.RunFiles(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary)
	return nil
}

func serveCmd(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("serve", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	return app.Serve(cfg)
}

func mcpCmd(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("mcp", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	return app.ServeMCP(cfg, version)
}
