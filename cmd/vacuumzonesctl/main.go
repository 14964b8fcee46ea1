// Package main is the operator CLI for the vacuumzones service.
//
// It drives the REST API (rooms, masters, dispatch history) and mints
// access tokens locally from the service configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Version information, set at build time via ldflags.
var version = "dev"

const (
	defaultServer  = "http://localhost:8090"
	defaultTimeout = 10 * time.Second
)

// globalFlags are shared by every API subcommand.
type globalFlags struct {
	server  string
	token   string
	timeout time.Duration
}

func (g *globalFlags) client() *client {
	return newClient(g.server, g.token, g.timeout)
}

func main() {
	if err := buildCLI().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "vacuumzonesctl",
		Short:        "Control per-room vacuum cleaning",
		Long:         "vacuumzonesctl talks to the vacuumzones API to list rooms, queue room cleans and inspect dispatches.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.server, "server", "s", envOr("VACUUMZONES_URL", defaultServer), "API base URL")
	rootCmd.PersistentFlags().StringVarP(&flags.token, "token", "t", os.Getenv("VACUUMZONES_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", defaultTimeout, "request timeout")

	rootCmd.AddCommand(
		buildRoomsCommand(flags),
		buildMastersCommand(flags),
		buildStartCommand(flags),
		buildStopCommand(flags),
		buildHomeCommand(flags),
		buildFlushCommand(flags),
		buildSyncCommand(flags),
		buildDispatchesCommand(flags),
		buildTokenCommand(),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type roomRow struct {
	UniqueID string          `json:"unique_id"`
	Name     string          `json:"name"`
	MasterID vacuum.MasterID `json:"master_id"`
	RoomID   vacuum.RoomID   `json:"room_id"`
	State    vacuum.Activity `json:"state"`
}

func buildRoomsCommand(flags *globalFlags) *cobra.Command {
	var master string

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List virtual rooms and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/rooms"
			if master != "" {
				path = "/masters/" + escape(master) + "/rooms"
			}
			var resp struct {
				Rooms []roomRow `json:"rooms"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodGet, path, nil, nil, &resp); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "UNIQUE ID\tNAME\tMASTER\tROOM\tSTATE")
			for _, r := range resp.Rooms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.UniqueID, r.Name, r.MasterID, r.RoomID, r.State)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&master, "master", "m", "", "only rooms of this master")
	return cmd
}

func buildMastersCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "masters",
		Short: "List vacuum masters with status and pending batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Masters []struct {
					ID       vacuum.MasterID `json:"id"`
					Status   vacuum.Status   `json:"status"`
					Activity vacuum.Activity `json:"activity"`
					Rooms    int             `json:"rooms"`
					Pending  vacuum.Pending  `json:"pending"`
				} `json:"masters"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodGet, "/masters", nil, nil, &resp); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "MASTER\tSTATUS\tACTIVITY\tROOMS\tPENDING")
			for _, m := range resp.Masters {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.ID, m.Status, m.Activity, m.Rooms, formatRooms(m.Pending.RoomIDs))
			}
			return tw.Flush()
		},
	}
}

func buildStartCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start ROOM_UID...",
		Short: "Queue one or more rooms for cleaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.client()
			for _, uid := range args {
				var resp struct {
					Pending vacuum.Pending `json:"pending"`
				}
				if err := c.do(cmd.Context(), http.MethodPost, "/rooms/"+escape(uid)+"/start", nil, nil, &resp); err != nil {
					return fmt.Errorf("start %s: %w", uid, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (master %s pending %s)\n",
					uid, resp.Pending.MasterID, formatRooms(resp.Pending.RoomIDs))
			}
			return nil
		},
	}
}

// masterAction builds a command that posts action against a room or master.
func masterAction(flags *globalFlags, use, short, action string) *cobra.Command {
	var byMaster bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/rooms/" + escape(args[0]) + "/" + action
			if byMaster {
				path = "/masters/" + escape(args[0]) + "/" + action
			}
			var resp struct {
				MasterID vacuum.MasterID `json:"master_id"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodPost, path, nil, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sent to %s\n", action, resp.MasterID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&byMaster, "master", "m", false, "argument is a master ID instead of a room unique ID")
	return cmd
}

func buildStopCommand(flags *globalFlags) *cobra.Command {
	return masterAction(flags, "stop ID", "Stop the master and drop its pending batch", "stop")
}

func buildHomeCommand(flags *globalFlags) *cobra.Command {
	return masterAction(flags, "home ID", "Send the master back to its dock", "return_home")
}

func buildFlushCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flush MASTER_ID",
		Short: "Dispatch a master's pending batch now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Dispatched []vacuum.RoomID `json:"dispatched"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodPost, "/masters/"+escape(args[0])+"/flush", nil, nil, &resp); err != nil {
				return err
			}
			if len(resp.Dispatched) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing pending")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched %s\n", formatRooms(resp.Dispatched))
			return nil
		},
	}
}

func buildSyncCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync MASTER_ID",
		Short: "Re-run room discovery for a master",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Rooms int `json:"rooms"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodPost, "/masters/"+escape(args[0])+"/sync", nil, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rooms synced\n", resp.Rooms)
			return nil
		},
	}
}

func buildDispatchesCommand(flags *globalFlags) *cobra.Command {
	var (
		master string
		kind   string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "dispatches",
		Short: "Show recent vacuum commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if master != "" {
				query.Set("master_id", master)
			}
			if kind != "" {
				query.Set("kind", kind)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			var resp struct {
				Dispatches []vacuum.DispatchRecord `json:"dispatches"`
			}
			if err := flags.client().do(cmd.Context(), http.MethodGet, "/dispatches", query, nil, &resp); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "REQUESTED\tMASTER\tKIND\tROOMS\tSTATUS\tLATENCY")
			for _, d := range resp.Dispatches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.RequestedAt.Local().Format(time.DateTime), d.MasterID, d.Kind,
					formatRooms(d.RoomIDs), d.Status, d.Latency().Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&master, "master", "m", "", "filter by master ID")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "filter by command kind")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum records (server default when 0)")
	return cmd
}

func buildTokenCommand() *cobra.Command {
	var (
		configPath string
		subject    string
		role       string
		masters    []string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token from the service configuration",
		Long:  "token signs a JWT locally with security.jwt.secret from the service config, so it works before any admin token exists.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Security.JWT.Secret == "" {
				return fmt.Errorf("security.jwt.secret is not set in %s", configPath)
			}

			token, err := auth.GenerateAccessToken(auth.TokenRequest{
				Subject: subject,
				Role:    auth.Role(role),
				Masters: masters,
				TTL:     ttl,
			}, cfg.Security.JWT.Secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", envOr("GRAYLOGIC_CONFIG", "configs/config.yaml"), "service config file")
	cmd.Flags().StringVar(&subject, "subject", "vacuumzonesctl", "token subject")
	cmd.Flags().StringVarP(&role, "role", "r", string(auth.RoleAdmin), "role: viewer, operator or admin")
	cmd.Flags().StringSliceVar(&masters, "scope", nil, "restrict commands to these master IDs")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatRooms(ids []vacuum.RoomID) string {
	if len(ids) == 0 {
		return "-"
	}
	return fmt.Sprint(ids)
}
