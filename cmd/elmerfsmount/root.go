// Package main is the elmerfsmount entrypoint: a cobra root command that
// parses flags into cfg.Config, builds the driver and dispatch loop, and
// mounts them with jacobsa/fuse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/AntidoteDB/elmerfs/cfg"
	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/antidotec/fake"
	"github.com/AntidoteDB/elmerfs/internal/clock"
	"github.com/AntidoteDB/elmerfs/internal/dispatch"
	"github.com/AntidoteDB/elmerfs/internal/driver"
	"github.com/AntidoteDB/elmerfs/internal/logger"
	"github.com/AntidoteDB/elmerfs/internal/view"
	elmerfs "github.com/AntidoteDB/elmerfs/fs"
)

var (
	bindErr       error
	cfgFile       string
	dumpConfig    bool
	configFileErr error
)

var rootCmd = &cobra.Command{
	Use:   "elmerfsmount [flags] mount_point",
	Short: "Mount a CRDT-backed filesystem view at mount_point",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		return runMount(args[0])
	},
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.Flags())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML file supplying any of the above flags.")
	rootCmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "Print the resolved configuration as YAML and exit without mounting.")
	cobra.OnInitialize(initConfig)
}

// initConfig merges a --config-file, when given, into viper ahead of flag
// and environment resolution. Flags and environment variables still win:
// BindFlags already registered them first, and viper.Get* always prefers an
// explicitly set flag over a config-file value.
func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("read config file %s: %w", cfgFile, err)
	}
}

func runMount(mountPoint string) error {
	config, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dumpConfig {
		out, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprint(os.Stdout, string(out))
		return nil
	}

	if err := logger.Init(config.LoggerConfig()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// The real AntidoteDB wire client is an external collaborator this repo
	// does not implement (see DESIGN.md); the in-memory fake is the only
	// dialer available, which makes this command useful for local exercise
	// and integration tests rather than a production mount against a real
	// cluster.
	dialer := fake.NewDialer()

	d := driver.New(driver.Config{
		View:           view.View(config.View),
		Bucket:         antidotec.Bucket(config.Bucket),
		Addresses:      config.Addresses,
		Locks:          config.Locks,
		MaxConnections: config.MaxConnections,
		PageSize:       config.PageSize,
	}, dialer, clock.RealClock{})

	loop := dispatch.New(d, logger.Default(), dispatch.DefaultQueueSize, dispatch.DefaultConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	server := fuseutil.NewFileSystemServer(elmerfs.New(loop))
	mfs, err := fuse.Mount(mountPoint, server, &fuse.MountConfig{
		FSName:     "elmerfs",
		Subtype:    "elmerfs",
		VolumeName: "elmerfs",
	})
	if err != nil {
		cancel()
		return fmt.Errorf("mount: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received %s, unmounting %s", sig, mountPoint)
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Errorf("unmount: %v", err)
		}
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.Errorf("dispatch loop stopped: %v", err)
		}
	}

	cancel()
	return mfs.Join(ctx)
}

func main() {
	viper.AutomaticEnv()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
