// Command lsmkv is a small command-line front end over the lsm
// engine: one put/get/del/scan/compact per invocation against a
// directory of SSTables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ChinmayNoob/lsmkv/lsm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := pflag.NewFlagSet("lsmkv", pflag.ContinueOnError)
	dir := fs.StringP("dir", "d", "data", "storage directory (must already exist)")
	flushThreshold := fs.IntP("flush-threshold", "f", 4<<20, "MemTable byte threshold before an automatic flush")
	verbose := fs.BoolP("verbose", "v", false, "enable info-level logging")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	args := fs.Args()

	logger := zap.NewNop().Sugar()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fatal(err)
		}
		logger = l.Sugar()
	}

	opts := lsm.DefaultOptions(*dir)
	opts.FlushThreshold = *flushThreshold
	opts.Logger = logger

	e, err := lsm.Open(opts)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = e.Close() }()

	switch cmd {
	case "put":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		if err := e.Upsert([]byte(args[0]), []byte(args[1])); err != nil {
			fatal(err)
		}
		fmt.Println("ok")

	case "del":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		if err := e.Remove([]byte(args[0])); err != nil {
			fatal(err)
		}
		fmt.Println("ok")

	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(2)
		}
		it, err := e.Iterator([]byte(args[0]))
		if err != nil {
			fatal(err)
		}
		rec, ok := it.Next()
		if err := it.Err(); err != nil {
			fatal(err)
		}
		if !ok || string(rec.Key) != args[0] {
			fmt.Println("(not found)")
			os.Exit(1)
		}
		fmt.Println(string(rec.Payload))

	case "scan":
		from := []byte(nil)
		if len(args) == 1 {
			from = []byte(args[0])
		}
		it, err := e.Iterator(from)
		if err != nil {
			fatal(err)
		}
		for {
			rec, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("%s\t%s\n", rec.Key, rec.Payload)
		}
		if err := it.Err(); err != nil {
			fatal(err)
		}

	case "compact":
		if err := e.Compact(); err != nil {
			fatal(err)
		}
		fmt.Println("ok")

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lsmkv [flags] put <key> <value>")
	fmt.Fprintln(os.Stderr, "  lsmkv [flags] get <key>")
	fmt.Fprintln(os.Stderr, "  lsmkv [flags] del <key>")
	fmt.Fprintln(os.Stderr, "  lsmkv [flags] scan [from]")
	fmt.Fprintln(os.Stderr, "  lsmkv [flags] compact")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  -d, --dir              storage directory (default: data)")
	fmt.Fprintln(os.Stderr, "  -f, --flush-threshold  MemTable byte threshold (default: 4MiB)")
	fmt.Fprintln(os.Stderr, "  -v, --verbose          enable info-level logging")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
