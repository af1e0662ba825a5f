package device

import (
	"context"
	"flag"
	"fmt"
)

// Run lists the video devices currently visible, with classified facing.
func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	sysfsDir := fs.String("sysfs", defaultSysfsDir, "video4linux sysfs directory")
	devDir := fs.String("dev", defaultDevDir, "device node directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	enum := &V4L2Enumerator{SysfsDir: *sysfsDir, DevDir: *devDir}
	catalog := NewCatalog(enum)
	devices := catalog.Refresh(ctx)

	if len(devices) == 0 {
		fmt.Println("no video devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s\t%s\n", d.ID, d.Facing, d.Label)
	}
	return nil
}
