package assetdb

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PathGUID is the GUID of an asset that has no sidecar: a name-based uuid of
// its slash-separated project path, without dashes.
func PathGUID(assetPath string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("asset:"+filepath.ToSlash(assetPath)))
	return strings.ReplaceAll(id.String(), "-", "")
}
