package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// listPageSize is the pageSize for files.list; 1000 is the Drive maximum.
const listPageSize = 1000

const (
	listFields = "nextPageToken,files(id,name,mimeType)"
	itemFields = "id,name,size,mimeType,md5Checksum"
)

// fileResponse mirrors the Drive v3 file resource for the fields requested.
// Unexported: callers use Item via toItem().
type fileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        string `json:"size"` // int64 encoded as a JSON string
	MD5Checksum string `json:"md5Checksum"`
}

type listResponse struct {
	NextPageToken string         `json:"nextPageToken"`
	Files         []fileResponse `json:"files"`
}

func (f *fileResponse) toItem(logger *slog.Logger) Item {
	size := int64(-1)

	if f.Size != "" {
		n, err := strconv.ParseInt(f.Size, 10, 64)
		if err != nil {
			logger.Warn("ignoring unparseable size",
				slog.String("item_id", f.ID),
				slog.String("size", f.Size),
			)
		} else {
			size = n
		}
	}

	return Item{
		ID:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        size,
		MD5Checksum: f.MD5Checksum,
	}
}

// childrenQuery builds the files.list q expression for the direct children
// of folderID, leaving out trashed ones unless trashed is set.
func childrenQuery(folderID string, trashed bool) string {
	escaped := strings.ReplaceAll(folderID, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)

	if trashed {
		return fmt.Sprintf("'%s' in parents", escaped)
	}

	return fmt.Sprintf("'%s' in parents and trashed = false", escaped)
}

// GetItem retrieves metadata for a single file.
func (c *Client) GetItem(ctx context.Context, fileID string) (*Item, error) {
	c.logger.Debug("getting item", slog.String("item_id", fileID))

	q := url.Values{}
	q.Set("fields", itemFields)
	q.Set("supportsAllDrives", "true")

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fr fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("gdrive: decoding item response: %w", err)
	}

	item := fr.toItem(c.logger)

	return &item, nil
}

// ListChildren returns every direct child of a folder, following
// nextPageToken until the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Item, error) {
	c.logger.Debug("listing children", slog.String("folder_id", folderID))

	var items []Item

	pageToken := ""
	page := 1

	for {
		pageItems, next, err := c.listChildrenPage(ctx, folderID, pageToken, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)

		if next == "" {
			break
		}

		pageToken = next
		page++
	}

	c.logger.Debug("listed children complete",
		slog.String("folder_id", folderID),
		slog.Int("total_items", len(items)),
		slog.Int("pages", page),
	)

	return items, nil
}

// listChildrenPage fetches a single page of children and returns the items
// and the next page token (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, folderID, pageToken string, page int) ([]Item, string, error) {
	q := url.Values{}
	q.Set("q", childrenQuery(folderID, c.trashed))
	q.Set("fields", listFields)
	q.Set("pageSize", strconv.Itoa(listPageSize))
	q.Set("supportsAllDrives", "true")
	q.Set("includeItemsFromAllDrives", "true")

	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	resp, err := c.Do(ctx, http.MethodGet, "/files?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, "", fmt.Errorf("gdrive: decoding list response: %w", err)
	}

	items := make([]Item, 0, len(lr.Files))
	for i := range lr.Files {
		items = append(items, lr.Files[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.String("folder_id", folderID),
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	return items, lr.NextPageToken, nil
}
