package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/earlyalloc/internal/plan"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print an example plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTemplate()
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
}

func runTemplate() error {
	p := &plan.Plan{
		Region:    plan.Region{Start: 0x1000, Size: 0x4000, PageSize: 0x1000},
		AlignMode: "exact",
		Steps: []plan.Step{
			{Name: "small object", Alloc: &plan.AllocStep{Size: 16, Align: 8}},
			{Name: "page table root", AllocPages: &plan.PageStep{Count: 1, Align: 0x1000}},
			{Name: "too large", Alloc: &plan.AllocStep{Size: 0x4000, Align: 1}, Expect: plan.ExpectNoMemory},
		},
	}
	return p.Encode(os.Stdout)
}
