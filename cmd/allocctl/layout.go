package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/internal/logger"
)

var (
	layoutWidth int
	layoutList  bool
)

func init() {
	cmd := newLayoutCmd()
	addScenarioFlags(cmd)
	cmd.Flags().IntVar(&layoutWidth, "width", 64, "Characters per row of the block map")
	cmd.Flags().BoolVar(&layoutList, "list", false, "List every block instead of drawing a map")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show the block layout after a workload",
		Long: `The layout command runs a workload without releasing the allocations
that are still live at the end, then shows how the arena is carved into
blocks. In the map each character covers an equal share of the arena:
'#' is mostly used, '.' is mostly free.

Example:
  allocctl layout -n 200 --arena-size 4KiB
  allocctl layout --policy dual-first-fit --threshold 128 --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(args)
		},
	}
	return cmd
}

var mapStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

type blockReport struct {
	Offset    uintptr `json:"offset"`
	OuterSize uintptr `json:"outer_size"`
	InnerSize uintptr `json:"inner_size"`
	Used      bool    `json:"used"`
	Alignment uintptr `json:"alignment,omitempty"`
	Last      bool    `json:"last,omitempty"`
}

type layoutReport struct {
	Arena  arenaReport   `json:"arena"`
	Blocks []blockReport `json:"blocks"`
}

func runLayout(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Fallback = nil
	stack, err := cfg.Build(logger.L)
	if err != nil {
		return fmt.Errorf("failed to build allocator stack: %w", err)
	}
	defer stack.Close()

	runWorkload(cfg, stack, false)

	r := layoutReport{Arena: reportArena("primary", stack.Primary)}
	for b := range stack.Primary.Blocks() {
		br := blockReport{
			Offset:    b.Offset(),
			OuterSize: b.OuterSize(),
			InnerSize: b.InnerSize(),
			Used:      b.Used(),
			Last:      b.Last(),
		}
		if b.Used() {
			br.Alignment = b.Alignment()
		}
		r.Blocks = append(r.Blocks, br)
	}

	if jsonOut {
		return printJSON(r)
	}
	if layoutList {
		printBlockList(r.Blocks)
	} else {
		printBlockMap(stack.Primary, layoutWidth)
	}
	printArenas([]arenaReport{r.Arena})
	return arenaError([]arenaReport{r.Arena})
}

func printBlockList(blocks []blockReport) {
	printHeading("Blocks:")
	printInfo("  %-10s %-10s %-10s %s\n", "offset", "outer", "inner", "state")
	for _, b := range blocks {
		state := green.Sprint("free")
		if b.Used {
			state = red.Sprint("used")
		}
		printInfo("  %#-10x %-10d %-10d %s\n", b.Offset, b.OuterSize, b.InnerSize, state)
	}
}

// printBlockMap draws the arena as rows of width cells. Each cell shows
// whether used or free bytes dominate the span it covers.
func printBlockMap(a *block.Allocator, width int) {
	if width <= 0 {
		width = 64
	}
	capacity := a.Capacity()
	cells := min(uintptr(width*16), capacity/block.Alignment)
	cellSize := (capacity + cells - 1) / cells
	used := make([]uintptr, cells)
	for b := range a.Blocks() {
		if !b.Used() {
			continue
		}
		for off, end := b.Offset(), b.Offset()+b.OuterSize(); off < end; {
			cell := off / cellSize
			next := min((cell+1)*cellSize, end)
			used[cell] += next - off
			off = next
		}
	}

	printHeading(fmt.Sprintf("Block map (%s per cell):", size(cellSize)))
	var rows []string
	var row strings.Builder
	for i, u := range used {
		if u*2 > cellSize {
			row.WriteString(red.Sprint("#"))
		} else {
			row.WriteString(green.Sprint("."))
		}
		if (i+1)%width == 0 || i == len(used)-1 {
			rows = append(rows, row.String())
			row.Reset()
		}
	}
	printInfo("%s\n", mapStyle.Render(strings.Join(rows, "\n")))
}
