// Command mabainctl is a small inspection tool over a pkg/mabain
// dictionary directory: stat, get, put, rm, and a manual recovery pass.
// Opens the dictionary read-only unless -w is passed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mabain/mabain-go/pkg/mabain"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mabainctl [-dir DIR] [-w] <stat|get|put|rm|recover> [args...]")
	flag.PrintDefaults()
}

func main() {
	dir := flag.String("dir", ".", "dictionary directory")
	writer := flag.Bool("w", false, "open for write (required for put/rm/recover)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	cmd := args[0]
	rest := args[1:]

	mode := mabain.AccessModeReader
	if *writer || cmd == "put" || cmd == "rm" || cmd == "recover" {
		mode = mabain.AccessModeWriter
	}

	db, err := mabain.Open(mabain.Options{Dir: *dir, AccessMode: mode})
	if err != nil {
		fmt.Fprintln(os.Stderr, "mabainctl: open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch cmd {
	case "stat":
		if err := db.PrintStats(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "mabainctl: stat:", err)
			os.Exit(1)
		}
	case "get":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: mabainctl get <key>")
			os.Exit(2)
		}
		v, err := db.Find([]byte(rest[0]))
		if err != nil {
			fmt.Fprintln(os.Stderr, "mabainctl: get:", err)
			os.Exit(1)
		}
		fmt.Println(string(v))
	case "put":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: mabainctl -w put <key> <value>")
			os.Exit(2)
		}
		if err := db.Add([]byte(rest[0]), []byte(rest[1]), true); err != nil {
			fmt.Fprintln(os.Stderr, "mabainctl: put:", err)
			os.Exit(1)
		}
	case "rm":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: mabainctl -w rm <key>")
			os.Exit(2)
		}
		if err := db.Remove([]byte(rest[0])); err != nil {
			fmt.Fprintln(os.Stderr, "mabainctl: rm:", err)
			os.Exit(1)
		}
	case "recover":
		// Opening for write already replayed any pending exception
		// record; db.Recovered reports whether one was actually found.
		if db.Recovered() {
			fmt.Println("recovery pass complete: a pending exception record was replayed")
		} else {
			fmt.Println("recovery pass complete: no pending exception record found")
		}
		if err := db.PrintStats(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "mabainctl: recover:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}
