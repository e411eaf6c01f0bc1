/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	daemon "github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/csweichel/notefs/pkg/config"
	"github.com/csweichel/notefs/pkg/inode"
	"github.com/csweichel/notefs/pkg/notefs"
	"github.com/csweichel/notefs/pkg/store"
	"github.com/csweichel/notefs/pkg/tree"
)

var mountOpts struct {
	Config     string
	Background bool
	LogFile    string
}

var cfg = config.NewDefault()

// mountCmd represents the mount command
var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mounts the note database at mountpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := loadConfig(cmd)
		if err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		if mountOpts.Background {
			dctx := &daemon.Context{
				LogFileName: mountOpts.LogFile,
				LogFilePerm: 0640,
				Umask:       027,
			}
			child, err := dctx.Reborn()
			if err != nil {
				log.WithError(err).Fatal("cannot start in background")
			}
			if child != nil {
				fmt.Printf("serving in background (pid %d)\n", child.Pid)
				return
			}
			defer dctx.Release()
		}

		t0 := time.Now()

		dbPath := cfg.DBPath()
		nfs, closer, err := openFS(dbPath)
		if err != nil {
			log.WithError(err).WithField("db", dbPath).Fatal("cannot open note database")
		}
		defer closer()

		mnt := args[0]
		if err := notefs.EnsureMountpoint(mnt); err != nil {
			log.WithError(err).Fatal("cannot prepare mountpoint")
		}
		server, err := notefs.Mount(mnt, nfs, notefs.MountOptions{
			Debug:       rootOpts.Verbose,
			AllowOther:  cfg.Mount.AllowOther,
			AllowRoot:   cfg.Mount.AllowRoot,
			AutoUnmount: cfg.Mount.AutoUnmount,
			Workers:     cfg.Mount.Workers,
			DBPath:      dbPath,
			Refresh:     cfg.Mount.Refresh,
		})
		if err != nil {
			log.WithError(err).Fatal("cannot mount")
		}

		go func() {
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigs
			log.WithField("signal", sig.String()).Info("unmounting")
			if err := server.Unmount(); err != nil {
				log.WithError(err).Error("cannot unmount")
			}
		}()

		log.WithField("db", dbPath).WithField("mountpoint", mnt).WithField("duration", time.Since(t0)).Info("mounted")
		fmt.Printf("to unmount: fusermount -u %s\n", mnt)
		server.Wait()
	},
}

func openFS(dbPath string) (*notefs.FS, func(), error) {
	gw, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}
	idx, err := inode.NewIndex()
	if err != nil {
		gw.Close()
		return nil, nil, err
	}

	nfs := notefs.New(tree.New(gw, idx, cfg.Mount.ScanLimit), notefs.Options{
		DefaultUID: cfg.Mount.UID,
		DefaultGID: cfg.Mount.GID,
		AttrTTL:    cfg.Mount.AttrTTL,
	})
	return nfs, func() {
		idx.Close()
		gw.Close()
	}, nil
}

// loadConfig applies the config file, then the flags set on the command line.
func loadConfig(cmd *cobra.Command) error {
	flags := *cfg
	if mountOpts.Config != "" {
		fromFile := config.NewDefault()
		if err := config.Load(mountOpts.Config, fromFile); err != nil {
			return err
		}
		*cfg = *fromFile
	}

	changed := cmd.Flags().Changed
	if changed("db") {
		cfg.DB = flags.DB
	}
	if changed("allow-other") {
		cfg.Mount.AllowOther = flags.Mount.AllowOther
	}
	if changed("allow-root") {
		cfg.Mount.AllowRoot = flags.Mount.AllowRoot
	}
	if changed("auto-unmount") {
		cfg.Mount.AutoUnmount = flags.Mount.AutoUnmount
	}
	if changed("attr-ttl") {
		cfg.Mount.AttrTTL = flags.Mount.AttrTTL
	}
	if changed("scan-limit") {
		cfg.Mount.ScanLimit = flags.Mount.ScanLimit
	}
	if changed("workers") {
		cfg.Mount.Workers = flags.Mount.Workers
	}
	if changed("refresh") {
		cfg.Mount.Refresh = flags.Mount.Refresh
	}
	if changed("uid") {
		cfg.Mount.UID = flags.Mount.UID
	}
	if changed("gid") {
		cfg.Mount.GID = flags.Mount.GID
	}
	return cfg.Validate()
}

func init() {
	rootCmd.AddCommand(mountCmd)

	addDBFlag(mountCmd)
	f := mountCmd.Flags()
	f.StringVarP(&mountOpts.Config, "config", "c", "", "YAML config file; flags given on the command line take precedence")
	f.BoolVar(&mountOpts.Background, "background", false, "detach and serve in the background")
	f.StringVar(&mountOpts.LogFile, "log-file", "", "log file used when serving in the background")
	f.BoolVar(&cfg.Mount.AllowOther, "allow-other", cfg.Mount.AllowOther, "allow other users to access the filesystem")
	f.BoolVar(&cfg.Mount.AllowRoot, "allow-root", cfg.Mount.AllowRoot, "allow root to access the filesystem")
	f.BoolVar(&cfg.Mount.AutoUnmount, "auto-unmount", cfg.Mount.AutoUnmount, "unmount automatically when the process exits")
	f.DurationVar(&cfg.Mount.AttrTTL, "attr-ttl", cfg.Mount.AttrTTL, "how long the kernel may cache attributes")
	f.IntVar(&cfg.Mount.ScanLimit, "scan-limit", cfg.Mount.ScanLimit, "maximum number of notes scanned to resolve an unknown inode")
	f.IntVar(&cfg.Mount.Workers, "workers", cfg.Mount.Workers, "number of concurrent database workers")
	f.DurationVar(&cfg.Mount.Refresh, "refresh", cfg.Mount.Refresh, "forget inode assignments periodically (0 only refreshes when the database changes)")
	f.Uint32Var(&cfg.Mount.UID, "uid", cfg.Mount.UID, "owner of all files (default: current user)")
	f.Uint32Var(&cfg.Mount.GID, "gid", cfg.Mount.GID, "group of all files (default: current group)")
}

func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.DB, "db", "", fmt.Sprintf("path to the note database (default: $%s or %s)", config.EnvDB, config.DefaultDBPath))
}
