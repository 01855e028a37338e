package config

import (
	"flag"
	"os"
	"time"

	"github.com/tracehq/tracesync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   path to the local SQLite database
//	-r string   remote backend DSN
//	-t string   path to the access token file
//	-o string   host:port probed for reachability
//	-w int      debounce window in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-r", "-t", "-o", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database")
	fs.StringVar(&cfg.RemoteDSN, "r", cfg.RemoteDSN, "remote backend DSN")
	fs.StringVar(&cfg.TokenPath, "t", cfg.TokenPath, "path to the access token file")
	fs.StringVar(&cfg.OnlineCheckAddr, "o", cfg.OnlineCheckAddr, "address probed for reachability")
	debounce := fs.Int("w", int(cfg.DebounceWindow.Seconds()), "debounce window (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.DebounceWindow = time.Duration(*debounce) * time.Second
}
