package journal

import (
	"context"
	"flag"
	"time"
)

type Options struct {
	Dir       string
	OlderThan time.Duration
}

// Run prunes old scan journal files.
func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	opt := Options{}

	fs.StringVar(&opt.Dir, "d", "/tmp", "directory containing journal files")
	fs.DurationVar(&opt.OlderThan, "s", 24*30*time.Hour, "delete journal files older than this duration from now")

	if err := fs.Parse(args); err != nil {
		return err
	}

	return Prune(opt.Dir, opt.OlderThan)
}
