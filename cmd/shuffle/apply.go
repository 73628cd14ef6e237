package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/pkg/client"
)

var (
	applyFile   string
	applyServer string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a sync delta from a file",
	Long:  "Reads a sync delta (JSON) from --file, or stdin when --file is \"-\", and applies it in one cycle. The delta goes to the local store, or with --server to a running server authenticated with SHUFFLE_API_KEY.",
	Args:  cobra.NoArgs,
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "-", "Delta file (\"-\" for stdin)")
	applyCmd.Flags().StringVar(&applyServer, "server", "", "Server base URL (e.g. http://localhost:8080)")
}

func runApply(cmd *cobra.Command, args []string) error {
	resp, err := readDelta(cmd, applyFile)
	if err != nil {
		return err
	}

	var result *shufflesync.Result
	if applyServer != "" {
		result, err = applyRemote(cmd, resp)
	} else {
		result, err = applyLocal(cmd, resp)
	}
	if err != nil {
		return fmt.Errorf("apply delta: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.String())
	return nil
}

func applyLocal(cmd *cobra.Command, resp *shufflesync.SyncResponse) (*shufflesync.Result, error) {
	cfg, db, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return newProcessor(cfg, db, nil).Process(cmd.Context(), resp)
}

func applyRemote(cmd *cobra.Command, resp *shufflesync.SyncResponse) (*shufflesync.Result, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(applyServer, cfg.Auth.APIKey).Sync(cmd.Context(), resp)
}

func readDelta(cmd *cobra.Command, path string) (*shufflesync.SyncResponse, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open delta: %w", err)
		}
		defer f.Close()
		r = f
	}

	var resp *shufflesync.SyncResponse
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse delta: %w", err)
	}
	if resp == nil {
		return nil, shufflesync.ErrNilResponse
	}
	return resp, nil
}
