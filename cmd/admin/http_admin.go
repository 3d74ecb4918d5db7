package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var cmdActor string

func init() {
	rootCmd.AddCommand(stateCmd, combatCmd, reconcileCmd, runCmd)
	runCmd.Flags().StringVar(&cmdActor, "as", "", "actor id to run the command as (default: console)")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the runtime metrics snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/admin/v1/state", nil)
	},
}

var combatCmd = &cobra.Command{
	Use:   "combat",
	Short: "List actors currently in combat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/admin/v1/combat", nil)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair one-sided trust edges now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPost, "/admin/v1/reconcile", nil)
	},
}

var runCmd = &cobra.Command{
	Use:   "cmd <name> [args...]",
	Short: "Run a server command with admin rights",
	Long:  "Runs one of the server commands (trust, combat, zone, ability) as the console, or as --as <actor>.",
	Example: `  truce-admin cmd zone create overworld -50 0 -50 50 320 50 Spawn
  truce-admin cmd combat remove 0b6c2f9e-5d0e-4f0a-9d53-0f3c3b2d8a11
  truce-admin cmd trust status alice`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]any{
			"actor": strings.TrimSpace(cmdActor),
			"name":  args[0],
			"args":  args[1:],
		})
		if err != nil {
			return err
		}
		return call(cmd, http.MethodPost, "/admin/v1/cmd", body)
	},
}

func call(cmd *cobra.Command, method, path string, body []byte) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
