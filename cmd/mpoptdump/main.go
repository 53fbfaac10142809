// Command mpoptdump decodes a run of MPTCP TCP options and prints one line
// per option. Input is hex-encoded unless -raw is given.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/r2northstar/mptcpd/pkg/mpopt"
)

var opt struct {
	Raw  bool
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Raw, "raw", "r", false, "Treat input as raw binary instead of hex-encoded")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [file|-]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var err error
	var buf []byte
	if pflag.NArg() == 1 && pflag.Arg(0) != "-" {
		buf, err = os.ReadFile(pflag.Arg(0))
	} else {
		buf, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: read input: %v\n", err)
		os.Exit(1)
	}

	if !opt.Raw {
		s := strings.TrimSpace(string(buf))
		s = strings.Join(strings.Fields(s), "")
		buf, err = hex.DecodeString(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: decode hex: %v\n", err)
			os.Exit(1)
		}
	}

	if err := mpopt.DumpOptions(os.Stdout, buf); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
