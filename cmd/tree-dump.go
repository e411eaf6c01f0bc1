/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/csweichel/notefs/pkg/notefs"
)

// treeDumpCmd represents the tree dump command
var treeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dumps the filesystem view of the note tree as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := cfg.DBPath()
		nfs, closer, err := openFS(dbPath)
		if err != nil {
			log.WithError(err).WithField("db", dbPath).Fatal("cannot open note database")
		}
		defer closer()

		err = dumpTree(context.Background(), nfs, os.Stdout)
		if err != nil {
			log.WithError(err).Fatal("cannot dump note tree")
		}
	},
}

func dumpTree(ctx context.Context, nfs *notefs.FS, out io.Writer) error {
	res := []notefs.Record{}
	err := nfs.Walk(ctx, func(r notefs.Record) error {
		res = append(res, r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot walk note tree: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("cannot write tree: %w", err)
	}
	return nil
}

func init() {
	treeCmd.AddCommand(treeDumpCmd)
	addDBFlag(treeDumpCmd)
}
