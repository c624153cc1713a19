package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	topK        int
	retrieveRaw bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Query.Answer(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Show ranked chunks and parents without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Query.Retrieve(cmd.Context(), strings.Join(args, " "), topK, !retrieveRaw)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, retrieveCmd} {
		c.Flags().IntVarP(&topK, "top-k", "k", 0, "number of child chunks to retrieve (0 uses the configured default)")
		rootCmd.AddCommand(c)
	}
	retrieveCmd.Flags().BoolVar(&retrieveRaw, "no-refine", false, "search with the query as given")
}
