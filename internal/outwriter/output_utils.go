package outwriter

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

const topOwnerCount = 3

// writeWithFile handles the common pattern of opening a file, writing to it, and cleaning up.
// It accepts a writer function that takes an io.Writer and returns an error.
func writeWithFile(outputFile string, writer func(io.Writer) error, successMsg string) error {
	file, err := contract.SelectOutputFile(outputFile)
	if err != nil {
		return err
	}
	// Only close if it's not stdout
	if file != os.Stdout {
		defer func() { _ = file.Close() }()
	}

	if err := writer(file); err != nil {
		return err
	}

	if file != os.Stdout {
		fmt.Fprintf(os.Stderr, "💾 %s to %s\n", successMsg, outputFile)
	}
	return nil
}

// writeJSON is a generic JSON encoder that handles indentation consistently.
func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

type ownerShare struct {
	identity string
	share    float64
}

// topOwners returns the largest ownership shares of a module, ties broken by identity.
func topOwners(m schema.Module, n int) []ownerShare {
	owners := make([]ownerShare, 0, len(m.OwnershipShares))
	for id, share := range m.OwnershipShares {
		owners = append(owners, ownerShare{identity: id, share: share})
	}
	slices.SortFunc(owners, func(a, b ownerShare) int {
		if c := cmp.Compare(b.share, a.share); c != 0 {
			return c
		}
		return cmp.Compare(a.identity, b.identity)
	})
	return owners[:min(n, len(owners))]
}

// formatTopOwners renders "Alice S (62%), Bob K (20%)" using contributor display names.
func formatTopOwners(m schema.Module, names map[string]string) string {
	owners := topOwners(m, topOwnerCount)
	if len(owners) == 0 {
		return "-"
	}
	parts := make([]string, len(owners))
	for i, o := range owners {
		name := names[o.identity]
		if name == "" {
			name = o.identity
		}
		parts[i] = fmt.Sprintf("%s (%.0f%%)", schema.AbbreviateName(name), o.share*100)
	}
	return strings.Join(parts, ", ")
}

// displayNames maps contributor identities to their display names.
func displayNames(contributors []schema.Contributor) map[string]string {
	names := make(map[string]string, len(contributors))
	for _, c := range contributors {
		names[c.Identity] = c.DisplayName
	}
	return names
}
