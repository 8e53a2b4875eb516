package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"driftshare.io/driftshare/pkg/core"
	"driftshare.io/driftshare/pkg/crypto"
	"driftshare.io/driftshare/pkg/events"
	"driftshare.io/driftshare/pkg/indexer"
	"driftshare.io/driftshare/pkg/segmenter"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
	"driftshare.io/driftshare/pkg/uploader"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "manage locally tracked folders",
}

func init() {
	folderCmd.AddCommand(folderAddCmd, folderIndexCmd, folderSegmentCmd, folderUploadCmd, folderListCmd)
}

var folderAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "add_folder: start tracking a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayName, _ := cmd.Flags().GetString("name")
		if displayName == "" {
			displayName = args[0]
		}
		group, _ := cmd.Flags().GetString("group")
		redundancy, _ := cmd.Flags().GetInt("redundancy")

		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		folder, err := core.AddFolder(n.store, newUUID, core.AddFolderParams{
			Path: args[0], DisplayName: displayName, TargetGroup: group, RedundancyLevel: redundancy,
		})
		if err != nil {
			return err
		}
		fmt.Printf("folder %s tracking %s\n", folder.ID, folder.Path)
		return nil
	},
}

func init() {
	folderAddCmd.Flags().String("name", "", "display name (defaults to the path)")
	folderAddCmd.Flags().String("group", "alt.binaries.driftshare", "target newsgroup for this folder's articles")
	folderAddCmd.Flags().Int("redundancy", 1, "number of copies to post per segment")
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "list tracked folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		folders, err := n.store.ListFolders()
		if err != nil {
			return err
		}
		for _, f := range folders {
			fmt.Printf("%s\tv%d\t%s\t%s\n", f.ID, f.Version, f.TargetGroup, f.Path)
		}
		return nil
	},
}

var folderIndexCmd = &cobra.Command{
	Use:   "index <folder-id>",
	Short: "index_folder: walk the tree and record file changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		folder, err := n.store.GetFolder(args[0])
		if err != nil {
			return err
		}
		broker := events.NewBroker()
		ix := indexer.New(n.store, n.cfg.ToIndexerConfig(), broker, newUUID)
		result, err := ix.Index(context.Background(), folder)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %s: %d added, %d modified, %d deleted, %d unchanged\n",
			folder.ID, result.Added, result.Modified, result.Deleted, result.Unchanged)
		return nil
	},
}

var folderSegmentCmd = &cobra.Command{
	Use:   "segment <folder-id>",
	Short: "segment_folder: chunk and encrypt every pending file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		folder, err := n.store.GetFolder(args[0])
		if err != nil {
			return err
		}
		if folder.ContentKey() == nil {
			return fmt.Errorf("folder %s has no content key", folder.ID)
		}

		files, err := n.store.ListFilesByFolder(folder.ID)
		if err != nil {
			return err
		}
		seg := segmenter.New(n.cfg.ToSegmenterConfig(), newUUID)
		var segmented int
		for _, file := range files {
			if file.ChangeKind == types.ChangeDeleted || file.ChangeKind == types.ChangeUnchanged {
				continue
			}
			sourcePath := filepath.Join(folder.Path, file.Path)
			plan, err := seg.SegmentFile(file, sourcePath, folder.ContentKey())
			if err != nil {
				return fmt.Errorf("segmenting %s: %w", file.Path, err)
			}
			for _, row := range plan.Segments {
				if err := n.store.CreateSegment(row); err != nil {
					return err
				}
				body := plan.Bodies[row.ID]
				if err := stageBody(n.cfg.Storage.Path, row.ID, body); err != nil {
					return err
				}
			}
			file.TotalSegments = len(plan.Segments)
			if err := n.store.UpsertFile(file); err != nil {
				return err
			}
			segmented++
		}
		fmt.Printf("segmented %d files for folder %s\n", segmented, folder.ID)
		return nil
	},
}

var folderUploadCmd = &cobra.Command{
	Use:   "upload <folder-id>",
	Short: "upload_folder: post every pending segment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openNode()
		if err != nil {
			return err
		}
		defer n.Close()

		folder, err := n.store.GetFolder(args[0])
		if err != nil {
			return err
		}
		files, err := n.store.ListFilesByFolder(folder.ID)
		if err != nil {
			return err
		}

		queue := uploader.NewQueue()
		var pending int
		for _, file := range files {
			segs, err := n.store.ListSegmentsByFile(file.ID)
			if err != nil {
				return err
			}
			for _, s := range segs {
				if s.State == types.SegmentUploaded {
					continue
				}
				queue.Add(&types.Job{ID: newUUIDMust(), Kind: "upload", EntityID: s.ID, Priority: 5, State: types.JobQueued, MaxRetries: 5})
				pending++
			}
		}
		if pending == 0 {
			fmt.Println("nothing to upload")
			return nil
		}

		broker := events.NewBroker()
		pool := uploader.New(uploader.DefaultConfig(), queue, n.net, n.store, broker, func(segmentID string) ([]byte, string, string, error) {
			seg, err := n.store.GetSegment(segmentID)
			if err != nil {
				return nil, "", "", err
			}
			body, err := loadStagedBody(n.cfg.Storage.Path, segmentID)
			if err != nil {
				return nil, "", "", err
			}
			subject := crypto.ObfuscateSubject(folder.SigningSeed(), segmentID, seg.RedundancyIndex, 32)
			return body, subject, folder.TargetGroup, nil
		})

		ctx := context.Background()
		pool.Start(ctx)
		waitForSegments(n.store, segmentIDsOf(files, n.store), pool, queue)
		fmt.Printf("uploaded %d segments for folder %s\n", pending, folder.ID)
		return nil
	},
}

// waitForSegments polls until every named segment has left the uploading
// pipeline (uploaded or failed for good), then drains the pool. Jobs are
// short-lived CLI-scoped work, so a poll loop is simpler than plumbing a
// completion signal through the worker pool.
func waitForSegments(store storage.Store, segmentIDs []string, pool *uploader.Pool, queue *uploader.Queue) {
	bar := progressbar.NewOptions(len(segmentIDs),
		progressbar.OptionSetDescription("uploading segments"),
		progressbar.OptionShowCount(),
	)
	for {
		var remaining int
		for _, id := range segmentIDs {
			seg, err := store.GetSegment(id)
			if err != nil {
				continue
			}
			if seg.State != types.SegmentUploaded && seg.State != types.SegmentFailed {
				remaining++
			}
		}
		_ = bar.Set(len(segmentIDs) - remaining)
		if remaining == 0 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	_ = bar.Finish()
	queue.Close()
	pool.Stop()
}

func segmentIDsOf(files []*types.File, store storage.Store) []string {
	var ids []string
	for _, f := range files {
		segs, err := store.ListSegmentsByFile(f.ID)
		if err != nil {
			continue
		}
		for _, s := range segs {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
