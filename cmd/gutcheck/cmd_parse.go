package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"gutcheck/internal/clock"
	"gutcheck/internal/perception"
	"gutcheck/internal/server"
	"gutcheck/internal/types"

	"github.com/spf13/cobra"
)

var (
	parseIntent string
	parseTZ     string
	parseUser   string
)

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse a message and print the result as JSON",
	Long: `Runs a message through extraction and the confidence gate and prints the
typed result plus the question the assistant would ask. Nothing is logged.

Example:
  gutcheck parse "had 2 slices of pizza and a coke at lunch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parseIntent, "intent", "", "Force an intent instead of detecting one")
	parseCmd.Flags().StringVar(&parseTZ, "tz", "", "IANA timezone for meal-time inference")
	parseCmd.Flags().StringVar(&parseUser, "user", "", "User whose learned phrases apply")
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := perception.Options{UserID: parseUser, Timezone: cfg.Location()}
	if parseTZ != "" {
		opts.Timezone = clock.LoadLocation(parseTZ)
	}
	if parseIntent != "" {
		in, ok := types.ParseIntent(parseIntent)
		if !ok {
			return fmt.Errorf("unknown intent: %s", parseIntent)
		}
		opts.ForcedIntent = in
	}

	text := strings.Join(args, " ")
	p := a.parser.Understand(ctx, text, opts)
	out := server.UnderstandResponse{
		Parse:         p,
		Clarification: a.dialog.NeedsClarification(text, &p),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
