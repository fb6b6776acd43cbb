package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func questCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Create, fund and settle quests",
	}
	cmd.AddCommand(
		questCreateCommand(flags),
		questGetCommand(flags),
		questListCommand(flags),
		questClaimableCommand(flags),
		poolCommand(flags, "fund"),
		poolCommand(flags, "overwrite"),
		poolGetCommand(flags),
		winnersCommand(flags),
		removeWinnersCommand(flags),
		winnerCommand(flags),
		claimCommand(flags),
	)
	return cmd
}

func parseQuestID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quest id %q: %w", raw, err)
	}
	return id, nil
}

// send issues the request and prints the response body.
func send(cmd *cobra.Command, flags *globalFlags, method, path string, body interface{}) error {
	raw, err := newClient(flags).call(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func questCreateCommand(flags *globalFlags) *cobra.Command {
	var fungible, unique, hybrid []string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a quest with its eligible assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			body := map[string]interface{}{
				"id":       id,
				"fungible": fungible,
				"unique":   unique,
				"hybrid":   hybrid,
			}
			return send(cmd, flags, http.MethodPost, "/v1/quests", body)
		},
	}
	cmd.Flags().StringSliceVar(&fungible, "fungible", nil, "eligible fungible asset addresses")
	cmd.Flags().StringSliceVar(&unique, "unique", nil, "eligible unique asset addresses")
	cmd.Flags().StringSliceVar(&hybrid, "hybrid", nil, "eligible hybrid asset addresses")
	return cmd
}

func questGetCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a quest and its remaining pools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			return send(cmd, flags, http.MethodGet, fmt.Sprintf("/v1/quests/%d", id), nil)
		},
	}
}

func questListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quest ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd, flags, http.MethodGet, "/v1/quests", nil)
		},
	}
}

func questClaimableCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "claimable <id> <true|false>",
		Short: "Open or close claiming",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			claimable, err := strconv.ParseBool(args[1])
			if err != nil {
				return err
			}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/claimable", id), map[string]bool{"claimable": claimable})
		},
	}
}

func poolCommand(flags *globalFlags, action string) *cobra.Command {
	short := "Add to the fungible pool of an asset"
	if action == "overwrite" {
		short = "Replace the unallocated fungible pool of an asset"
	}
	return &cobra.Command{
		Use:   action + " <id> <asset> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			body := map[string]string{"asset": args[1], "amount": args[2]}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/pools/%s", id, action), body)
		},
	}
}

func poolGetCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pool <id> <asset>",
		Short: "Show the accounting of one fungible pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			return send(cmd, flags, http.MethodGet, fmt.Sprintf("/v1/quests/%d/pools/%s", id, url.PathEscape(args[1])), nil)
		},
	}
}

func winnersCommand(flags *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set-winners <id>",
		Short: "Assign a winner batch read from a JSON file",
		Long: "The file holds the parallel-array batch: participants plus one fungible, " +
			"unique and hybrid reward list per participant.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%s is not valid JSON", file)
			}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/winners", id), json.RawMessage(raw))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "winner batch file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func removeWinnersCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-winners <id> <participant>...",
		Short: "Release the allocations of participants",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			body := map[string][]string{"participants": args[1:]}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/winners/remove", id), body)
		},
	}
}

func winnerCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "winner <id> [participant]",
		Short: "Show one allocation, or list winners without a participant",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/quests/%d/winners", id)
			if len(args) == 2 {
				path += "/" + url.PathEscape(args[1])
			}
			return send(cmd, flags, http.MethodGet, path, nil)
		},
	}
}

func claimCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim the token holder's allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseQuestID(args[0])
			if err != nil {
				return err
			}
			return send(cmd, flags, http.MethodPost, fmt.Sprintf("/v1/quests/%d/claim", id), nil)
		},
	}
}

func custodyCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custody",
		Short: "Inspect and change engine approvals",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "approve <engine> <true|false>",
			Short: "Approve or revoke an engine",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				approved, err := strconv.ParseBool(args[1])
				if err != nil {
					return err
				}
				body := map[string]interface{}{"engine": args[0], "approved": approved}
				return send(cmd, flags, http.MethodPost, "/v1/custody/engines", body)
			},
		},
		&cobra.Command{
			Use:   "status <engine>",
			Short: "Show whether an engine is approved",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, flags, http.MethodGet, "/v1/custody/engines/"+url.PathEscape(args[0]), nil)
			},
		},
		&cobra.Command{
			Use:   "roles",
			Short: "Show the engine owner and admin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return send(cmd, flags, http.MethodGet, "/v1/admin", nil)
			},
		},
	)
	return cmd
}

func auditCommand(flags *globalFlags) *cobra.Command {
	var eventType string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if eventType != "" {
				query.Set("type", eventType)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/audit"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}
			return send(cmd, flags, http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "event type filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records")
	return cmd
}
