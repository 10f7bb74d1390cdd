package policy

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"storyloom/internal/story"
)

//go:embed defaults/*.yaml
var defaultFS embed.FS

// Policy is a resolved generation policy for one phase: the system prompt,
// extra guidelines appended to the user prompt, and the sampling
// temperature. It is a value, not a file handle.
type Policy struct {
	System      string  `yaml:"system"`
	Guidelines  string  `yaml:"guidelines"`
	Temperature float64 `yaml:"temperature"`
}

// Loader resolves generation policies from a skills directory, falling
// back to embedded defaults. An empty directory means embedded only.
type Loader struct {
	dir string
}

// NewLoader constructs a policy loader over a skills directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Resolve returns the policy for a phase, layering overrides on top of the
// embedded default:
//
//	defaults/<phase>.yaml            (embedded, always present)
//	<dir>/<phase>.yaml               (base override)
//	<dir>/<phase>.<genre>.yaml       (genre override)
//	<dir>/<phase>.<platform>.yaml    (platform override)
//
// Later layers override only the fields they set. Unknown phases fail.
func (l *Loader) Resolve(phase story.Phase, genre, platform string) (Policy, error) {
	base, err := embeddedPolicy(phase)
	if err != nil {
		return Policy{}, err
	}

	if l == nil || l.dir == "" {
		return base, nil
	}

	names := []string{string(phase) + ".yaml"}
	if genre = sanitizeQualifier(genre); genre != "" {
		names = append(names, string(phase)+"."+genre+".yaml")
	}
	if platform = sanitizeQualifier(platform); platform != "" {
		names = append(names, string(phase)+"."+platform+".yaml")
	}

	for _, name := range names {
		overlay, found, err := readPolicyFile(filepath.Join(l.dir, name))
		if err != nil {
			return Policy{}, err
		}
		if found {
			base = merge(base, overlay)
		}
	}
	return base, nil
}

func embeddedPolicy(phase story.Phase) (Policy, error) {
	data, err := defaultFS.ReadFile("defaults/" + string(phase) + ".yaml")
	if err != nil {
		return Policy{}, fmt.Errorf("no generation policy for phase %q: %w", phase, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse embedded policy %s: %w", phase, err)
	}
	return p, nil
}

func readPolicyFile(path string) (Policy, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Policy{}, false, nil
		}
		return Policy{}, false, fmt.Errorf("read policy %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, false, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p, true, nil
}

func merge(base, overlay Policy) Policy {
	if strings.TrimSpace(overlay.System) != "" {
		base.System = overlay.System
	}
	if strings.TrimSpace(overlay.Guidelines) != "" {
		base.Guidelines = overlay.Guidelines
	}
	if overlay.Temperature > 0 {
		base.Temperature = overlay.Temperature
	}
	return base
}

func sanitizeQualifier(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
