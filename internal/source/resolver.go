// Package source turns user input into a SourceReference the pipeline can fetch.
package source

import (
	"net/url"
	"regexp"
	"strings"

	"accent-analyzer-go/internal/types"
)

const driveDownloadBase = "https://drive.google.com/uc?export=download&id="

var shareIDPattern = regexp.MustCompile(`file/d/([a-zA-Z0-9_-]+)`)

// ShareFileID extracts the hosted file identifier from a share link. The
// second result is false when raw has no `file/d/<id>` segment.
func ShareFileID(raw string) (string, bool) {
	m := shareIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DirectDownloadURL is the download link for a hosted file id.
func DirectDownloadURL(fileID string) string {
	return driveDownloadBase + url.QueryEscape(fileID)
}

// IsHostedShare reports whether raw points at the file-hosting service and so
// must go through id extraction.
func IsHostedShare(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "drive.google.com") {
		return true
	}
	return strings.Contains(lower, "/file/d/")
}

// Resolve classifies raw and derives the URL retrieval should fetch.
func Resolve(raw string) (types.SourceReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.SourceReference{}, types.NewError(types.ErrInvalidSource, nil, "empty video url")
	}

	if IsHostedShare(raw) {
		id, ok := ShareFileID(raw)
		if !ok {
			return types.SourceReference{}, types.NewError(types.ErrInvalidSource, nil,
				"invalid Google Drive URL %q: use a shared link like https://drive.google.com/file/d/<id>/view", raw)
		}
		return types.SourceReference{
			Kind:        types.SourceRemote,
			RawURL:      raw,
			URLKind:     types.URLHostedShare,
			FileID:      id,
			ResolvedURL: DirectDownloadURL(id),
		}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.SourceReference{}, types.NewError(types.ErrInvalidSource, err, "not an http(s) url: %q", raw)
	}
	return types.SourceReference{
		Kind:        types.SourceRemote,
		RawURL:      raw,
		URLKind:     types.URLGeneric,
		ResolvedURL: raw,
	}, nil
}

// Local wraps an upload that the caller already saved to disk.
func Local(path string) types.SourceReference {
	return types.SourceReference{Kind: types.SourceLocal, LocalPath: path}
}
