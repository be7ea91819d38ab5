package outwriter

import (
	"os"

	"github.com/huangsam/xray/internal/contract"
	"golang.org/x/term"
)

// GetMaxTablePathWidth calculates the maximum width for module paths in table output
// based on terminal width and the fixed module-table columns.
func GetMaxTablePathWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Rank + Risk + Bus Factor + Commits + Lines + Source with borders/padding
	baseWidth := 55

	// Top owners column
	baseWidth += 35

	// Table borders and separators
	baseWidth += 10

	available := termWidth - baseWidth
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}
