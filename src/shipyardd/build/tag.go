package build

import (
	"path/filepath"
	"strings"

	"github.com/bitswalk/shipyard/src/common/errors"
)

// DefaultTagVersion is used when no version is supplied
const DefaultTagVersion = "latest"

var tagReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", ".", "_", "@", "_")

// TagInput holds the identifiers an image tag is generated from
type TagInput struct {
	// Explicit is used verbatim when set
	Explicit string

	ProjectName string
	// UserName takes precedence over UserID
	UserName string
	UserID   string
	Version  string

	// WorkspaceDir supplies the project component when ProjectName is empty
	WorkspaceDir string
}

// SanitizeTagPart trims a tag component and replaces space, '/', ':', '.' and '@' with '_'
func SanitizeTagPart(s string) string {
	return tagReplacer.Replace(strings.TrimSpace(s))
}

// Tag generates "{project}_{user}_{version}". It is a pure function: the same
// input always yields the same tag. Warnings describe defaulted components.
func Tag(in TagInput) (string, []string, error) {
	if in.Explicit != "" {
		return in.Explicit, nil, nil
	}

	var warnings []string

	project := SanitizeTagPart(in.ProjectName)
	if project == "" && in.WorkspaceDir != "" {
		base := filepath.Base(filepath.Clean(in.WorkspaceDir))
		if base != "." && base != string(filepath.Separator) {
			project = SanitizeTagPart(base)
		}
	}

	var user string
	switch {
	case strings.TrimSpace(in.UserName) != "":
		user = SanitizeTagPart(in.UserName)
	case strings.TrimSpace(in.UserID) != "":
		user = SanitizeTagPart(in.UserID)
	default:
		warnings = append(warnings, "no user name or id provided, image tag will not include a user")
	}

	version := SanitizeTagPart(in.Version)
	if version == "" {
		version = DefaultTagVersion
		warnings = append(warnings, "no version provided, image tag uses 'latest'")
	}

	if project == "" && user == "" {
		return "", warnings, errors.ErrInvalidTag
	}

	return project + "_" + user + "_" + version, warnings, nil
}
