package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/hauvanvn/FAT32-Recovery-Tool"
)

type rootParameters struct {
	Filepath     string `short:"f" long:"filepath" description:"File-path of the raw block image" required:"true"`
	Partition    int    `short:"p" long:"partition" description:"Partition index to mount" default:"0"`
	Repair       bool   `long:"repair" description:"Run consistency check and allocation-chain repair before anything else"`
	DryRun       bool   `long:"dry-run" description:"With --repair, report findings without writing them back"`
	List         bool   `long:"list" description:"List deleted-entry recovery candidates in the root directory"`
	Browse       bool   `long:"browse" description:"List the live directory tree"`
	Restore      string `long:"restore" description:"Restore one candidate: CLUSTER:OFFSET:CHAR"`
	RestoreTree  string `long:"restore-tree" description:"Recursively restore a directory entry: CLUSTER:OFFSET:CHAR"`
}

var rootArguments = new(rootParameters)

func main() {
	defer func() {
		if state := recover(); state != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", state)
			os.Exit(1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}

	logger := fat32.NewDefaultLogger("fat32recover")

	ih, err := fat32.OpenImage(rootArguments.Filepath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open image: %v\n", err)
		os.Exit(1)
	}

	defer ih.Close()

	if err := ih.LockExclusive(); err != nil {
		logger.Warnf("could not take an exclusive lock on the image: %v", err)
	}

	defer ih.Unlock()

	v := fat32.NewVolume(ih, logger)

	if err := v.InitializeMBR(); err != nil {
		fmt.Fprintf(os.Stderr, "MBR initialization failed: %v\n", err)
		os.Exit(1)
	}

	partitions := v.ListPartitions()
	fmt.Printf("found %d partition(s)\n", len(partitions))

	for i, part := range partitions {
		fmt.Printf("  [%d] LBA=%d sectors=%s active=%v\n", i, part.FirstLBA, humanize.Comma(int64(part.SectorCount)), part.IsActive())
	}

	if err := v.InitializeVolume(rootArguments.Partition); err != nil {
		fmt.Fprintf(os.Stderr, "volume initialization failed: %v\n", err)
		os.Exit(1)
	}

	if err := v.LoadFAT(); err != nil {
		fmt.Fprintf(os.Stderr, "FAT load failed: %v\n", err)
		os.Exit(1)
	}

	root := v.RootCluster()

	if rootArguments.Repair {
		report, err := v.ScanAndAutoRepair(root, !rootArguments.DryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "repair failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("consistency: %d orphaned cluster(s) freed, %d missing start(s) rewritten\n",
			len(report.Consistency.OrphanedClusters), len(report.Consistency.MissingStartClusters))
		fmt.Printf("allocation repair: %d entr(ies) reassigned\n", len(report.Repaired))
	}

	if rootArguments.Browse {
		entries, err := v.ListTree(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listing failed: %v\n", err)
			os.Exit(1)
		}

		for _, e := range entries {
			kind := "file"
			if e.IsDirectory {
				kind = "dir"
			}

			fmt.Printf("%5s %15s %s\n", kind, humanize.Comma(int64(e.Size)), e.Path)
		}
	}

	if rootArguments.List {
		candidates, err := v.AnalyzeRecoveryCandidates(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
			os.Exit(1)
		}

		for i, c := range candidates {
			fmt.Printf("[%d] %-20s size=%-12s start=%-8d recoverable=%v reason=%s\n",
				i, c.ShortName, humanize.Comma(int64(c.Size)), c.StartCluster, c.IsRecoverable, c.Reason)
		}
	}

	if rootArguments.Restore != "" {
		cluster, offset, char, err := parseRestoreTarget(rootArguments.Restore)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad --restore target: %v\n", err)
			os.Exit(1)
		}

		if err := v.RestoreDeletedFile(cluster, offset, char); err != nil {
			fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("restored entry at cluster %d offset %d\n", cluster, offset)
	}

	if rootArguments.RestoreTree != "" {
		cluster, offset, char, err := parseRestoreTarget(rootArguments.RestoreTree)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad --restore-tree target: %v\n", err)
			os.Exit(1)
		}

		if err := v.RestoreTree(cluster, offset, char); err != nil {
			fmt.Fprintf(os.Stderr, "subtree restore failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("restored subtree rooted at cluster %d offset %d\n", cluster, offset)
	}

	if usage, err := v.Usage(); err == nil {
		fmt.Printf("usage: %s/%s clusters used (%s free, %s bad)\n",
			humanize.Comma(int64(usage.UsedClusters)), humanize.Comma(int64(usage.TotalClusters)),
			humanize.Comma(int64(usage.FreeClusters)), humanize.Comma(int64(usage.BadClusters)))
	}
}

// parseRestoreTarget parses a "CLUSTER:OFFSET:CHAR" flag value.
func parseRestoreTarget(spec string) (cluster uint32, offset int, char byte, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected CLUSTER:OFFSET:CHAR, got %q", spec)
	}

	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, 0, err
	}

	o, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}

	if len(parts[2]) != 1 {
		return 0, 0, 0, fmt.Errorf("replacement char must be a single byte, got %q", parts[2])
	}

	return uint32(c), o, parts[2][0], nil
}
