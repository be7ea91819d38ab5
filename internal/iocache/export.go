package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/parquet"
)

// ExecuteRunsExport exports the run history of store to two Parquet files
// named after outputFile.
func ExecuteRunsExport(w io.Writer, store contract.RunStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run tracking is disabled; set runs-backend to export runs")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no run data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total module snapshots: %d\n", status.TotalSnapshots)

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	snapshots, err := store.GetAllModuleSnapshots()
	if err != nil {
		return fmt.Errorf("failed to retrieve module snapshots: %w", err)
	}

	runsFile := outputFile + ".runs.parquet"
	parquetRuns := parquet.ConvertRunRecords(runs)
	if err := parquet.WriteRunsParquet(parquetRuns, runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d runs to: %s\n", len(parquetRuns), runsFile)

	snapshotsFile := outputFile + ".module_snapshots.parquet"
	parquetSnapshots := parquet.ConvertModuleSnapshotRecords(snapshots)
	if err := parquet.WriteModuleSnapshotsParquet(parquetSnapshots, snapshotsFile); err != nil {
		return fmt.Errorf("failed to write module snapshots: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d module snapshots to: %s\n", len(parquetSnapshots), snapshotsFile)

	return nil
}
