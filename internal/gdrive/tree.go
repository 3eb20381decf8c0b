package gdrive

import (
	"context"
	"fmt"
	"log/slog"
)

// folderWork is one pending folder in the traversal.
type folderWork struct {
	id     string
	prefix string
}

// ListFiles walks the folder tree under folderID and returns one record per
// leaf file, with Path relative to folderID. Folders are never emitted.
// The walk uses an explicit stack so depth is bounded only by memory.
// Any listing error aborts the walk.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]FileRecord, error) {
	c.logger.Info("listing folder tree", slog.String("folder_id", folderID))

	var records []FileRecord

	stack := []folderWork{{id: folderID}}
	folders := 0

	for len(stack) > 0 {
		work := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		folders++

		children, err := c.ListChildren(ctx, work.id)
		if err != nil {
			return nil, fmt.Errorf("gdrive: listing folder %s: %w", work.id, err)
		}

		for i := range children {
			child := &children[i]

			if child.IsFolder() {
				stack = append(stack, folderWork{id: child.ID, prefix: work.prefix + child.Name + "/"})

				continue
			}

			records = append(records, FileRecord{
				ID:       child.ID,
				Name:     child.Name,
				Path:     work.prefix + child.Name,
				MimeType: child.MimeType,
			})
		}
	}

	c.logger.Info("listed folder tree",
		slog.String("folder_id", folderID),
		slog.Int("folders", folders),
		slog.Int("files", len(records)),
	)

	return records, nil
}
