package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"regspi/host/monitor"
	"regspi/host/serial"
	"regspi/protocol"
)

var (
	device   = flag.String("device", "", "Serial device path (default: first RP2040/RP2350 USB port)")
	baud     = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	list     = flag.Bool("list", false, "List serial ports and exit")
	verbose  = flag.Bool("verbose", false, "Print region announcements and link statistics")
	interval = flag.Duration("stats", 10*time.Second, "Link statistics interval with -verbose (0 disables)")
)

func main() {
	flag.Parse()

	if *list {
		if err := listPorts(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func listPorts() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		marker := " "
		if p.IsRaspberryPi() {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, p)
	}
	return nil
}

func run() error {
	path := *device
	if path == "" {
		found, err := serial.FindFollower()
		if err != nil {
			return fmt.Errorf("%w (use -device)", err)
		}
		path = found
	}

	cfg := serial.DefaultConfig(path)
	cfg.Baud = *baud

	mon := monitor.New()
	if err := mon.Connect(cfg); err != nil {
		return err
	}
	defer mon.Close()

	fmt.Printf("Monitoring %s (Ctrl-C to stop)\n", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	msgs := make(chan protocol.Message, 64)

	g.Go(func() error {
		defer close(msgs)
		return mon.Run(ctx, msgs)
	})

	g.Go(func() error {
		var tick <-chan time.Time
		if *verbose && *interval > 0 {
			ticker := time.NewTicker(*interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				if msg.ID == protocol.MsgRegion && !*verbose {
					continue
				}
				fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), mon.Describe(msg))

			case <-tick:
				link := mon.Link()
				fmt.Printf("link: frames=%d resyncs=%d lost=%d bad=%d\n",
					link.Frames, link.Errors, link.Lost, link.BadFrames)

			case <-ctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
