package main

import (
	"errors"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/org/mdmagent/internal/syncworker"
	"github.com/org/mdmagent/pkg/models"
)

// errReported marks an error already printed to stderr.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:           "agentctl",
	Short:         "mdmagent CLI",
	Long:          "A CLI for inspecting and driving a running mdmagent.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			printError(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with --format=raw)")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(calllogCmd())
	rootCmd.AddCommand(callStateCmd())
	rootCmd.AddCommand(locationCmd())
	rootCmd.AddCommand(configCmd())
}

// show prints a result, or the error and any body that came with it.
func show(result map[string]any, err error) error {
	if err != nil {
		printError(err.Error())
		return errReported
	}
	printResult(result)
	return nil
}

// --- status ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/sys/health"))
		},
	}
}

// --- policy ---

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Inspect the work-time policy"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the policy in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/policy"))
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload the policy from the device configuration or the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if cmd.Flags().Changed("payload") {
				payload, _ := cmd.Flags().GetString("payload")
				body = map[string]any{"payload": payload}
			}
			return show(newClient().post("/v1/policy/refresh", body))
		},
	}
	refreshCmd.Flags().String("payload", "", "Use this policy payload instead of the device configuration")

	cmd.AddCommand(showCmd, refreshCmd)
	return cmd
}

// --- app ---

func appCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "app", Short: "Query app access"}

	checkCmd := &cobra.Command{
		Use:   "check <package>",
		Short: "Check whether an app may be launched now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().get("/v1/apps/" + url.PathEscape(args[0]) + "/access"))
		},
	}

	cmd.AddCommand(checkCmd)
	return cmd
}

// --- sync ---

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [job]",
		Short: "List sync jobs, or trigger one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 0 {
				return show(client.get("/v1/sync"))
			}
			result, err := client.post("/v1/sync/"+url.PathEscape(args[0]), nil)
			if err != nil && result["queued"] == false {
				printSuccess("Job " + args[0] + " is already pending")
				return nil
			}
			return show(result, err)
		},
	}
}

// --- calllog ---

func calllogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "calllog", Short: "Manage recorded calls"}

	addCmd := &cobra.Command{
		Use:   "add <number>",
		Short: "Record a call, as the platform bridge would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString("type")
			name, _ := cmd.Flags().GetString("name")
			dur, _ := cmd.Flags().GetDuration("duration")
			at, _ := cmd.Flags().GetString("at")

			callType, ok := models.ParseCallType(typ)
			if !ok {
				return errors.New("unknown call type " + typ)
			}
			ts := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				ts = parsed
			}
			rec := models.CallLogRecord{
				PhoneNumber:   args[0],
				ContactName:   name,
				CallType:      callType,
				Duration:      int64(dur / time.Second),
				CallTimestamp: ts.UnixMilli(),
			}
			return show(newClient().post("/v1/calllog", map[string]any{
				"records": []models.CallLogRecord{rec},
			}))
		},
	}
	addCmd.Flags().String("type", "incoming", "Call type: incoming, outgoing, missed, voicemail, rejected, blocked, answered_externally")
	addCmd.Flags().String("name", "", "Contact name")
	addCmd.Flags().Duration("duration", 0, "Call duration")
	addCmd.Flags().String("at", "", "Call start time (RFC 3339), defaults to now")

	cmd.AddCommand(addCmd)
	return cmd
}

// --- call-state ---

func callStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "call-state <idle|ringing|offhook>",
		Short:     "Report a telephony state change",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(syncworker.CallStateIdle), string(syncworker.CallStateRinging), string(syncworker.CallStateOffhook)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(newClient().post("/v1/events/call-state", map[string]any{"state": args[0]}))
		},
	}
}

// --- location ---

func locationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "location", Short: "Manage the device location"}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Record the latest known location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			if _, err := newClient().post("/v1/location", models.Location{Lat: lat, Lon: lon}); err != nil {
				printError(err.Error())
				return errReported
			}
			printSuccess("Location recorded")
			return nil
		},
	}
	setCmd.Flags().Float64("lat", 0, "Latitude")
	setCmd.Flags().Float64("lon", 0, "Longitude")
	_ = setCmd.MarkFlagRequired("lat")
	_ = setCmd.MarkFlagRequired("lon")

	cmd.AddCommand(setCmd)
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage the CLI configuration"}

	setCmd := &cobra.Command{
		Use:   "set <address|token> <value>",
		Short: "Persist a CLI setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "address":
				cfg.Address = args[1]
			case "token":
				cfg.Token = args[1]
			default:
				return errors.New("unknown setting " + args[0])
			}
			if err := saveConfig(); err != nil {
				return err
			}
			printSuccess("Saved " + configPath())
			return nil
		},
	}

	cmd.AddCommand(setCmd)
	return cmd
}
