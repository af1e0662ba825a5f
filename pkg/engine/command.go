package engine

import (
	"context"
	"flag"
	"log/slog"
	"time"

	device "github.com/mpoegel/turnstile/pkg/device"
	decode "github.com/mpoegel/turnstile/pkg/decode"
	validate "github.com/mpoegel/turnstile/pkg/validate"
	web "github.com/mpoegel/turnstile/pkg/web"
	errgroup "golang.org/x/sync/errgroup"
)

type CommandOptions struct {
	DeviceID    string
	Facing      string
	Decoder     string
	Interval    time.Duration
	Endpoint    string
	EventID     string
	JournalDir  string
	RescanDelay time.Duration
	WebAddr     string
	NoWatch     bool
}

func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	opt := CommandOptions{}

	fs.StringVar(&opt.DeviceID, "d", "", "camera device ID; empty picks by facing")
	fs.StringVar(&opt.Facing, "facing", "back", "preferred camera facing [front, back]")
	fs.StringVar(&opt.Decoder, "decoder", "frame", "decode backend [frame, library]")
	fs.DurationVar(&opt.Interval, "f", 50*time.Millisecond, "frame sampling interval")
	fs.StringVar(&opt.Endpoint, "endpoint", "http://localhost:8080/api/tickets/check", "ticket validation endpoint")
	fs.StringVar(&opt.EventID, "event", "", "event ID sent with each check")
	fs.StringVar(&opt.JournalDir, "journal", "/tmp", "directory for scan journal files")
	fs.DurationVar(&opt.RescanDelay, "rescan", 2*time.Second, "delay before the same rejected code may be re-submitted")
	fs.StringVar(&opt.WebAddr, "l", ":8671", "operator console listen address")
	fs.BoolVar(&opt.NoWatch, "no-watch", false, "disable device hot-plug watching")

	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, err := New(Options{
		DeviceID:    opt.DeviceID,
		Facing:      device.Facing(opt.Facing),
		Decoder:     decode.Kind(opt.Decoder),
		Interval:    opt.Interval,
		JournalDir:  opt.JournalDir,
		RescanDelay: opt.RescanDelay,
		WatchDev:    !opt.NoWatch,
		Client:      validate.NewHTTPClient(opt.Endpoint, opt.EventID, 10*time.Second),
	})
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err = eng.Start(subCtx); err != nil {
		// Keep serving: the operator can fix the camera and retry from the
		// console.
		slog.Error("camera did not start", "err", err)
	}
	defer eng.Close()

	server := web.NewServer(web.Options{Addr: opt.WebAddr}, eng)

	group, groupCtx := errgroup.WithContext(subCtx)
	group.Go(server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		server.Stop()
		return nil
	})

	return group.Wait()
}
