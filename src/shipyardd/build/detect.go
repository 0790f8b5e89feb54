package build

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Stack is the detected technology category of a submitted project
type Stack string

const (
	StackUnknown     Stack = ""
	StackDockerfile  Stack = "dockerfile"
	StackCompose     Stack = "compose"
	StackReactNative Stack = "react-native"
	StackNodeJS      Stack = "nodejs"
	StackPython      Stack = "python"
)

// templateNames maps generated-descriptor stacks to their template directory
var templateNames = map[Stack]string{
	StackNodeJS:      "web-nodejs",
	StackPython:      "web-python",
	StackReactNative: "mobile-react-native",
}

// NeedsTemplate reports whether the stack builds from a generated Dockerfile
func (s Stack) NeedsTemplate() bool {
	_, ok := templateNames[s]
	return ok
}

// TemplateName returns the template directory name for the stack
func (s Stack) TemplateName() string {
	return templateNames[s]
}

// String returns the stack name, "unknown" for StackUnknown
func (s Stack) String() string {
	if s == StackUnknown {
		return "unknown"
	}
	return string(s)
}

// Compose file names, in lookup order
var composeFileNames = []string{"docker-compose.yml", "docker-compose.yaml"}

// projectMarkers are the files whose presence identifies a project root
var projectMarkers = append([]string{"Dockerfile", "package.json", "requirements.txt"}, composeFileNames...)

// Detect classifies the workspace at dir. When the root holds no project marker but
// exactly one visible subdirectory does, that subdirectory is flattened into the root
// first. Running Detect again on the same directory yields the same stack.
func Detect(dir string) (Stack, error) {
	names, err := listNames(dir)
	if err != nil {
		return StackUnknown, err
	}

	if !hasMarker(names) {
		flattened, err := Flatten(dir)
		if err != nil {
			return StackUnknown, err
		}
		if flattened {
			if names, err = listNames(dir); err != nil {
				return StackUnknown, err
			}
		}
	}

	return Classify(names), nil
}

// Classify applies the stack precedence to a set of top-level file names
func Classify(names map[string]bool) Stack {
	switch {
	case names["Dockerfile"]:
		return StackDockerfile
	case names["docker-compose.yml"] || names["docker-compose.yaml"]:
		return StackCompose
	case names["package.json"] && (names["app.json"] || names["App.js"]):
		return StackReactNative
	case names["package.json"]:
		return StackNodeJS
	case names["requirements.txt"]:
		return StackPython
	default:
		return StackUnknown
	}
}

// Flatten copies the contents of the single visible subdirectory of dir up into dir,
// merging directories and overwriting files. It only acts when the root has no
// project marker and the subdirectory has one; it reports whether it did.
func Flatten(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("failed to read workspace: %w", err)
	}

	names := make(map[string]bool, len(entries))
	var subdirs []string
	for _, e := range entries {
		names[e.Name()] = true
		if e.IsDir() && !isHiddenDir(e.Name()) {
			subdirs = append(subdirs, e.Name())
		}
	}

	if hasMarker(names) || len(subdirs) != 1 {
		return false, nil
	}

	sub := filepath.Join(dir, subdirs[0])
	subNames, err := listNames(sub)
	if err != nil {
		return false, err
	}
	if !hasMarker(subNames) {
		return false, nil
	}

	log.Debug("Flattening nested project directory", "subdir", subdirs[0])

	if err := mergeTree(sub, dir); err != nil {
		return false, fmt.Errorf("failed to flatten %s: %w", subdirs[0], err)
	}
	return true, nil
}

// FindComposeFile returns the path of the compose file in dir, or ""
func FindComposeFile(dir string) string {
	for _, name := range composeFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

func isHiddenDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}

func hasMarker(names map[string]bool) bool {
	for _, m := range projectMarkers {
		if names[m] {
			return true
		}
	}
	return false
}

func listNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

// mergeTree copies src into dst. Regular files overwrite, directories merge,
// anything else is skipped.
func mergeTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if rel == "." {
				return nil
			}
			return os.MkdirAll(target, 0755)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// A directory at the target name is replaced by the file.
	if info, err := os.Lstat(dst); err == nil && info.IsDir() {
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
