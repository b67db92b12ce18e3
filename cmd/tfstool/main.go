// Command tfstool is an interactive client for a TFS cluster: it reads
// commands from stdin, one per line, and prints their result, mirroring
// the original nameserver tfstool's REPL.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xushiwei/tfs/pkg/client"
	"github.com/xushiwei/tfs/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tfstool",
	Short:   "Interactive client for a TFS cluster",
	Version: fmt.Sprintf("%s (%s)", Version, Commit),
	RunE:    runRepl,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().StringP("nameserver", "s", "127.0.0.1:7900", "Coordinator address")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var notImplementedCmds = map[string]bool{
	"cd": true, "pwd": true, "cfi": true, "batch": true,
}

func runRepl(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("nameserver")

	c, err := client.NewClient(addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer c.Close()

	fmt.Printf("tfstool connected to %s\n", addr)
	fmt.Println("type 'help' for a command list, 'quit' to exit")

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for {
		fmt.Print("tfstool> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		name, rest := fields[0], fields[1:]

		if name == "quit" || name == "@" {
			break
		}
		if notImplementedCmds[name] {
			fmt.Printf("%s: not implemented, the fd/session table is out of scope for this client\n", name)
			continue
		}
		if err := dispatch(ctx, c, name, rest); err != nil {
			fmt.Printf("%s: %v\n", name, err)
		}
	}
	return nil
}

func dispatch(ctx context.Context, c *client.Client, name string, args []string) error {
	switch name {
	case "help":
		printHelp()
		return nil
	case "put":
		return cmdPut(ctx, c, args)
	case "get":
		return cmdGet(ctx, c, args)
	case "rm":
		return cmdRemove(ctx, c, args)
	case "urm", "undel":
		return cmdUndelete(ctx, c, args)
	case "hide":
		return cmdHide(ctx, c, args, true)
	case "unhide":
		return cmdHide(ctx, c, args, false)
	case "stat":
		return cmdStat(ctx, c, args)
	case "statblk":
		return cmdStatBlock(ctx, c, args)
	case "listblock":
		return cmdListBlocks(ctx, c)
	default:
		return fmt.Errorf("unknown command, try 'help'")
	}
}

func printHelp() {
	fmt.Println(`commands:
  put <local-file>        upload a file, prints its assigned TFS name
  get <name> <local-file> download a file by its TFS name
  rm <name>               mark a file deleted (recoverable)
  urm|undel <name>        undo a prior rm
  hide <name>             conceal a file without deleting it
  unhide <name>           reverse hide
  stat <name>             print size/flags for a name
  statblk <block-id>      print a block's file count and live/deleted bytes
  listblock               list every block id the coordinator tracks
  help                    this message
  quit|@                  exit
  cd, pwd, cfi, batch      not implemented (no client fd table)`)
}

func cmdPut(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: put <local-file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	name, err := c.Put(ctx, data, false)
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

func cmdGet(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: get <name> <local-file>")
	}
	data, err := c.Get(ctx, args[0], false)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], data, 0o644)
}

func cmdRemove(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: rm <name>")
	}
	return c.Remove(ctx, args[0])
}

func cmdUndelete(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: urm <name>")
	}
	return c.Undelete(ctx, args[0])
}

func cmdHide(ctx context.Context, c *client.Client, args []string, hide bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hide <name>")
	}
	if hide {
		return c.Hide(ctx, args[0])
	}
	return c.Unhide(ctx, args[0])
}

func cmdStat(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: stat <name>")
	}
	info, err := c.Stat(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("size=%d status=%d\n", info.Size, info.Status)
	return nil
}

func cmdStatBlock(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: statblk <block-id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid block id: %w", err)
	}
	info, err := c.StatBlock(ctx, uint32(id))
	if err != nil {
		return err
	}
	fmt.Printf("files=%d live=%d deleted=%d\n", info.FileCount, info.LiveSize, info.DeletedSize)
	return nil
}

func cmdListBlocks(ctx context.Context, c *client.Client) error {
	ids, err := c.ListBlocks(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
