package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

func newTokenCommand(o *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch a development token from the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Token     string `json:"token"`
				ExpiresAt string `json:"expires_at"`
			}
			q := url.Values{}
			if user != "" {
				q.Set("user", user)
			}
			if err := o.client().do(cmd.Context(), http.MethodGet, "/auth/dev-token", q, nil, &out); err != nil {
				return err
			}
			if o.output() == outputJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Subject recorded as the issuer of commands.")
	return cmd
}

func newVehiclesCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vehicles",
		Short: "List known vehicles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var vehicles []model.VehicleSummary
			if err := o.client().do(cmd.Context(), http.MethodGet, "/api/vehicles", nil, nil, &vehicles); err != nil {
				return err
			}
			if o.output() == outputJSON {
				return printJSON(cmd.OutOrStdout(), vehicles)
			}
			t := newTable("VEHICLE", "TYPE", "MISSION", "LAST SEEN", "TELEMETRY")
			for _, v := range vehicles {
				t.AddRow(v.VehicleID, orDash(string(v.Type)), orDash(v.ActiveTaskID), formatTime(v.LastSeen), v.HasTelemetry)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newStateCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state VEHICLE",
		Short: "Show the latest telemetry of a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap model.TelemetrySnapshot
			if err := o.client().do(cmd.Context(), http.MethodGet, "/api/state/"+url.PathEscape(args[0]), nil, nil, &snap); err != nil {
				return err
			}
			if o.output() == outputJSON {
				return printJSON(cmd.OutOrStdout(), snap)
			}
			t := newTable("FIELD", "VALUE")
			t.AddRow("vehicle", snap.VehicleID)
			t.AddRow("type", orDash(string(snap.Vehicle.Type)))
			t.AddRow("timestamp", formatTime(snap.Timestamp))
			t.AddRow("position", fmt.Sprintf("%.6f, %.6f", snap.Pose.Lat, snap.Pose.Lon))
			t.AddRow("heading", fmt.Sprintf("%.1f deg", snap.Pose.HeadingDeg))
			t.AddRow("speed", fmt.Sprintf("%.2f m/s", snap.Pose.SpeedMps))
			t.AddRow("depth", fmt.Sprintf("%.2f m", snap.DepthM))
			t.AddRow("thrusters", fmt.Sprintf("L %d / R %d", snap.Thrusters.LeftPwm, snap.Thrusters.RightPwm))
			t.AddRow("rudder", fmt.Sprintf("%.1f deg", snap.RudderDeg))
			t.AddRow("battery", fmt.Sprintf("%.1f V, %.0f%%", snap.Battery.Voltage, snap.Battery.SocPct))
			t.AddRow("leak", snap.Leak)
			t.AddRow("mission", fmt.Sprintf("%s %s", orDash(snap.Mission.TaskID), orDash(string(snap.Mission.Mode))))
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newCommandCommand(o *rootOptions) *cobra.Command {
	var (
		payload  string
		override bool
	)
	cmd := &cobra.Command{
		Use:   "command VEHICLE TYPE",
		Short: "Send a command to a vehicle",
		Example: `  hydronom-ctl command boat-01 SET_THRUSTERS --payload '{"left_pwm":1600,"right_pwm":1600}'
  hydronom-ctl command sub-02 SET_RUDDER --payload '{"rudder_deg":15}' --override`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := model.Command{
				VehicleID: args[0],
				Type:      model.CommandType(strings.ToUpper(args[1])),
				Override:  override,
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid JSON")
				}
				c.Payload = json.RawMessage(payload)
			}

			var res model.CommandResult
			if err := o.client().do(cmd.Context(), http.MethodPost, "/api/commands", nil, c, &res); err != nil {
				return err
			}
			if o.output() == outputJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			t := newTable("SEQ", "ACCEPTED", "REASON")
			t.AddRow(res.Seq, res.Accepted, orDash(res.Reason))
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Command payload as a JSON object.")
	cmd.Flags().BoolVar(&override, "override", false, "Bypass the mode conflict check.")
	return cmd
}

func newMissionCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Create and drive missions",
	}
	cmd.AddCommand(newMissionCreateCommand(o), newMissionGetCommand(o), newMissionActionCommand(o))
	return cmd
}

func newMissionCreateCommand(o *rootOptions) *cobra.Command {
	var (
		m         model.Mission
		mode      string
		waypoints []string
	)
	cmd := &cobra.Command{
		Use:     "create TASK_ID VEHICLE",
		Short:   "Create a mission",
		Example: `  hydronom-ctl mission create survey-7 boat-01 --mode AUTONOMOUS --waypoint 41.02,28.85 --waypoint 41.03,28.86,30`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.TaskID, m.VehicleID = args[0], args[1]
			m.Mode = model.Mode(strings.ToUpper(mode))
			for _, raw := range waypoints {
				wp, err := parseWaypoint(raw)
				if err != nil {
					return err
				}
				m.Waypoints = append(m.Waypoints, wp)
			}

			var created model.Mission
			if err := o.client().do(cmd.Context(), http.MethodPost, "/api/missions", nil, m, &created); err != nil {
				return err
			}
			return printMission(cmd, o, created)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&m.Name, "name", "", "Human readable mission name.")
	fs.StringVar(&mode, "mode", string(model.ModeManual), "Control mode: MANUAL, AUTONOMOUS or EMERGENCY.")
	fs.StringArrayVar(&waypoints, "waypoint", nil, "Waypoint as lat,lon[,hold_s]. Repeatable.")
	fs.Float64Var(&m.Constraints.MaxSpeedMps, "max-speed", 0, "Speed limit in m/s.")
	fs.Float64Var(&m.Constraints.KeepDepthM, "keep-depth", 0, "Depth to hold in meters.")
	return cmd
}

func newMissionGetCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get TASK_ID",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m model.Mission
			if err := o.client().do(cmd.Context(), http.MethodGet, "/api/missions/"+url.PathEscape(args[0]), nil, nil, &m); err != nil {
				return err
			}
			return printMission(cmd, o, m)
		},
	}
}

func newMissionActionCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "action TASK_ID ACTION",
		Short:     "Apply a lifecycle action (START, PAUSE, RESUME, ABORT, COMPLETE)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"START", "PAUSE", "RESUME", "ABORT", "COMPLETE"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/missions/" + url.PathEscape(args[0]) + "/" + url.PathEscape(strings.ToUpper(args[1]))
			var m model.Mission
			if err := o.client().do(cmd.Context(), http.MethodPost, path, nil, nil, &m); err != nil {
				return err
			}
			return printMission(cmd, o, m)
		},
	}
}

func printMission(cmd *cobra.Command, o *rootOptions, m model.Mission) error {
	if o.output() == outputJSON {
		return printJSON(cmd.OutOrStdout(), m)
	}
	t := newTable("TASK", "VEHICLE", "MODE", "STATE", "WAYPOINTS", "UPDATED")
	t.AddRow(m.TaskID, m.VehicleID, m.Mode, m.State, len(m.Waypoints), formatTime(m.UpdatedAt))
	fmt.Fprintln(cmd.OutOrStdout(), t)
	return nil
}

func newAuditCommand(o *rootOptions) *cobra.Command {
	var since, limit uint64
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			q.Set("since", strconv.FormatUint(since, 10))
			q.Set("limit", strconv.FormatUint(limit, 10))

			var recs []model.Record
			if err := o.client().do(cmd.Context(), http.MethodGet, "/api/audit", q, nil, &recs); err != nil {
				return err
			}
			if o.output() == outputJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			t := newTable("LT", "KIND", "VEHICLE", "AT")
			for _, r := range recs {
				t.AddRow(uint64(r.LogicalTime), r.Kind, r.VehicleID, formatTime(r.At))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Only records after this logical time.")
	cmd.Flags().Uint64Var(&limit, "limit", 100, "Maximum number of records (1-1000).")
	return cmd
}

func parseWaypoint(raw string) (model.Waypoint, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return model.Waypoint{}, fmt.Errorf("waypoint %q: want lat,lon[,hold_s]", raw)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Waypoint{}, fmt.Errorf("waypoint %q: %w", raw, err)
		}
		vals[i] = v
	}
	return model.Waypoint{Lat: vals[0], Lon: vals[1], HoldS: vals[2]}, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
