package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	c "lautenbacher.net/blinkd/config"
	"lautenbacher.net/blinkd/device"
	"lautenbacher.net/blinkd/ipc/socket"
)

type options struct {
	socketPath string
	objectPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	defaults := c.Default().Service
	opts := &options{}

	root := &cobra.Command{
		Use:           "blinkctl",
		Short:         "Control the LED strip served by blinkd",
		Long:          "Control the LED strip served by blinkd.\n\nArguments starting with '-' must follow a \"--\" separator.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.socketPath, "socket", defaults.SocketPath, "unix socket of the blinkd instance")
	root.PersistentFlags().StringVar(&opts.objectPath, "path", defaults.Path, "object path of the blink service")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "timeout for a single call")

	root.AddCommand(
		&cobra.Command{
			Use:   "set-all R G B BRIGHTNESS",
			Short: "Set every LED to one color",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				color, err := parseColor(args[0:3])
				if err != nil {
					return err
				}
				brightness, err := parseBrightness(args[3])
				if err != nil {
					return err
				}
				return withClient(cmd, opts, func(ctx context.Context, cl *socket.Client) error {
					return cl.SetAll(ctx, color, brightness)
				})
			},
		},
		&cobra.Command{
			Use:   "set-pixel INDEX R G B BRIGHTNESS",
			Short: "Set a single LED",
			Args:  cobra.ExactArgs(5),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid index %q: %w", args[0], err)
				}
				color, err := parseColor(args[1:4])
				if err != nil {
					return err
				}
				brightness, err := parseBrightness(args[4])
				if err != nil {
					return err
				}
				return withClient(cmd, opts, func(ctx context.Context, cl *socket.Client) error {
					return cl.SetPixel(ctx, uint32(index), color, brightness)
				})
			},
		},
		&cobra.Command{
			Use:   "brightness BRIGHTNESS",
			Short: "Set the global brightness used by the next show",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				brightness, err := parseBrightness(args[0])
				if err != nil {
					return err
				}
				return withClient(cmd, opts, func(ctx context.Context, cl *socket.Client) error {
					return cl.SetBrightness(ctx, brightness)
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Switch all LEDs off",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, opts, func(ctx context.Context, cl *socket.Client) error {
					return cl.Clear(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Send the pending state to the LEDs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, opts, func(ctx context.Context, cl *socket.Client) error {
					return cl.Show(ctx)
				})
			},
		},
	)
	return root
}

func withClient(cmd *cobra.Command, opts *options, call func(ctx context.Context, cl *socket.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	cl, err := socket.Dial(ctx, opts.socketPath, opts.objectPath)
	if err != nil {
		return err
	}
	defer cl.Close()
	return call(ctx, cl)
}

func parseColor(args []string) (device.Color, error) {
	var rgb [3]byte
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return device.Color{}, fmt.Errorf("invalid color component %q: %w", arg, err)
		}
		rgb[i] = byte(v)
	}
	return device.RGB(rgb[0], rgb[1], rgb[2]), nil
}

// parseBrightness only checks the syntax. Range checks happen in the
// service so that the fault comes back from there.
func parseBrightness(arg string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid brightness %q: %w", arg, err)
	}
	return v, nil
}
