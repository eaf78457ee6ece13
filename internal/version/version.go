package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// Version is overridden at build time with -ldflags "-X ...version.Version=1.2.3"
// or by a VERSION file next to the binary.
var Version = "dev"

type Info struct {
	Version  string `json:"version"`
	Major    int    `json:"major"`
	Revision string `json:"revision,omitempty"`
}

// Load reads a VERSION file when present. A missing file keeps the current
// Version.
func Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if v := strings.TrimSpace(string(b)); v != "" {
		Version = v
	}
	return nil
}

func Get() Info {
	info := Info{Version: Version}
	if major, err := ExtractMajorVersion(strings.TrimPrefix(Version, "v")); err == nil {
		info.Major = major
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}

func ExtractMajorVersion(version string) (int, error) {
	if version == "" {
		return 0, fmt.Errorf("empty version string")
	}

	parts := strings.Split(version, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid major version: %v", err)
	}

	if major < 0 {
		return 0, fmt.Errorf("major version cannot be negative")
	}

	return major, nil
}
