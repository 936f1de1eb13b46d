package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockalloc/alloc/block"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List placement policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPolicies(args)
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}

var policyHelp = map[string]string{
	"first-fit":      "lowest-addressed free block that fits",
	"last-fit":       "highest-addressed free block that fits, carved from its high end",
	"best-fit":       "smallest free block that fits",
	"worst-fit":      "largest free block",
	"dual-first-fit": "small requests first-fit from the low end, large ones from the high end",
}

type policyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func runPolicies(args []string) error {
	var out []policyInfo
	for _, name := range block.PolicyNames {
		out = append(out, policyInfo{Name: name, Description: policyHelp[name]})
	}
	if jsonOut {
		return printJSON(out)
	}
	for _, p := range out {
		printInfo("%-16s %s\n", bold.Sprint(p.Name), p.Description)
	}
	return nil
}
