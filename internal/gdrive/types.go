package gdrive

import "strings"

// Drive MIME types with special meaning.
const (
	FolderMimeType       = "application/vnd.google-apps.folder"
	googleAppsMimePrefix = "application/vnd.google-apps."
)

// FileRecord is one leaf file found under the migrated folder. Path is the
// file name prefixed by its ancestor folder names joined with "/", relative
// to the root folder, and doubles as the destination object key.
type FileRecord struct {
	ID       string
	Name     string
	Path     string
	MimeType string
}

// Item is a normalized Drive file resource.
type Item struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64 // -1 when Drive did not report a size
	MD5Checksum string
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

// IsGoogleNative reports whether the item is a Docs/Sheets/Slides style
// document that exists only as a Google format and has no bytes to download.
func (i *Item) IsGoogleNative() bool {
	return !i.IsFolder() && strings.HasPrefix(i.MimeType, googleAppsMimePrefix)
}
