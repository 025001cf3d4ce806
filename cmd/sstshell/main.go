// Package main provides sstshell, an interactive shell over a table file.
//
// Usage:
//
//	sstshell --file=<path> [--options=<path>]
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/aalhour/blocktable"
	"github.com/aalhour/blocktable/internal/logging"
	"github.com/aalhour/blocktable/internal/vfs"
)

var (
	filePath    = flag.String("file", "", "Path to the table file (required)")
	optionsPath = flag.String("options", "", "Options file the table was written with")
	help        = flag.Bool("help", false, "Print help")
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem("get"),
	readline.PcItem("seek"),
	readline.PcItem("scan"),
	readline.PcItem("stats"),
)

const helpText = `Commands:
  get <key>                  Look up a key
  seek <key>                 Show the first entry at or after key
  scan [from] [to] [limit]   List entries in [from, to); "-" leaves a bound open
  stats                      Show table properties
  .help                      Show this help
  .exit                      Leave the shell

Keys starting with 0x are read as hex.
`

// defaultScanLimit caps scans that do not name a limit.
const defaultScanLimit = 100

func main() {
	flag.Parse()

	if *help || *filePath == "" {
		fmt.Println("Usage: sstshell --file=<path> [--options=<path>]")
		flag.PrintDefaults()
		if !*help {
			os.Exit(1)
		}
		return
	}

	opts := blocktable.DefaultOptions()
	if *optionsPath != "" {
		var err error
		opts, err = blocktable.ReadOptionsFile(vfs.Default(), *optionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading options: %s\n", err)
			os.Exit(1)
		}
	}

	tbl, err := blocktable.Open(*filePath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening table: %s\n", err)
		os.Exit(1)
	}
	defer tbl.Close()

	historyFile := filepath.Join(os.TempDir(), ".sstshell_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("sst:%s> ", filepath.Base(*filePath)),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	sh := &shell{tbl: tbl, out: rl.Stdout(), logger: opts.Logger}
	fmt.Fprintln(sh.out, "Enter .help for usage hints.")

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if errors.Is(readErr, readline.ErrInterrupt) {
				if len(line) == 0 {
					break
				}
				continue
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}
		if !sh.execute(line) {
			break
		}
	}
}

// shell runs commands against one open table.
type shell struct {
	tbl    *blocktable.Table
	out    io.Writer
	logger blocktable.Logger
}

// execute runs one command line. It returns false when the shell should
// exit.
func (sh *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}

	var err error
	switch cmd := strings.ToLower(parts[0]); cmd {
	case ".exit", ".quit":
		return false
	case ".help":
		fmt.Fprint(sh.out, helpText)
	case "get":
		err = sh.get(parts[1:])
	case "seek":
		err = sh.seek(parts[1:])
	case "scan":
		err = sh.scan(parts[1:])
	case "stats":
		err = sh.stats()
	default:
		err = fmt.Errorf("unknown command %q, try .help", cmd)
	}
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %s\n", err)
		if blocktable.IsCorruption(err) || blocktable.IsIOError(err) {
			sh.logger.Errorf(logging.NSShell+"%s: %v", line, err)
		}
	}
	return true
}

func (sh *shell) get(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <key>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return err
	}
	value, err := sh.tbl.Get(key)
	if blocktable.IsNotFound(err) {
		fmt.Fprintln(sh.out, "(not found)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, format(value))
	return nil
}

func (sh *shell) seek(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <key>")
	}
	key, err := parseKey(args[0])
	if err != nil {
		return err
	}
	it := sh.tbl.NewIterator()
	defer it.Release()

	it.Seek(key)
	if !it.Valid() {
		if err := it.Error(); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "(end of table)")
		return nil
	}
	fmt.Fprintf(sh.out, "%s => %s\n", format(it.Key()), format(it.Value()))
	return nil
}

func (sh *shell) scan(args []string) error {
	if len(args) > 3 {
		return errors.New("usage: scan [from] [to] [limit]")
	}
	var from, to []byte
	limit := defaultScanLimit
	var err error
	if len(args) > 0 && args[0] != "-" {
		if from, err = parseKey(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 && args[1] != "-" {
		if to, err = parseKey(args[1]); err != nil {
			return err
		}
	}
	if len(args) > 2 {
		if limit, err = strconv.Atoi(args[2]); err != nil || limit <= 0 {
			return fmt.Errorf("bad limit %q", args[2])
		}
	}

	cmp := sh.tbl.Comparator()
	it := sh.tbl.NewIterator()
	defer it.Release()

	if from != nil {
		it.Seek(from)
	} else {
		it.SeekToFirst()
	}
	n := 0
	for ; it.Valid() && n < limit; it.Next() {
		if to != nil && cmp.Compare(it.Key(), to) >= 0 {
			break
		}
		fmt.Fprintf(sh.out, "%s => %s\n", format(it.Key()), format(it.Value()))
		n++
	}
	if err := it.Error(); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "(%d entries)\n", n)
	return nil
}

func (sh *shell) stats() error {
	fmt.Fprintf(sh.out, "File size: %d bytes\n", sh.tbl.Size())
	fmt.Fprintf(sh.out, "Filter: %t\n", sh.tbl.HasFilter())
	props, err := sh.tbl.Properties()
	if errors.Is(err, blocktable.ErrNotFound) {
		fmt.Fprintln(sh.out, "(no properties block)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Entries: %d\n", props.NumEntries)
	fmt.Fprintf(sh.out, "Data blocks: %d\n", props.NumDataBlocks)
	fmt.Fprintf(sh.out, "Data size: %d\n", props.DataSize)
	fmt.Fprintf(sh.out, "Index size: %d\n", props.IndexSize)
	fmt.Fprintf(sh.out, "Filter size: %d\n", props.FilterSize)
	fmt.Fprintf(sh.out, "Comparator: %s\n", props.ComparatorName)
	if props.FilterPolicyName != "" {
		fmt.Fprintf(sh.out, "Filter policy: %s\n", props.FilterPolicyName)
	}
	return nil
}

func parseKey(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("bad hex key %q: %w", s, err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func format(b []byte) string {
	for _, c := range b {
		if c < 32 || c > 126 {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(b)
}
