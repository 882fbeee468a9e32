package conf

import (
	"fmt"
	"os"
	"strings"

	"git.sr.ht/~spc/go-ini"
)

// legacyContainer is the optional [container] section of clash.ini.
type legacyContainer struct {
	Command string `ini:"command"`
	Image   string `ini:"image"`
	Workdir string `ini:"workdir"`
}

// legacyInstance is the [instance] section of clash.ini.
type legacyInstance struct {
	Name         string `ini:"name"`
	Subscription string `ini:"subscription"`
	ClashRoot    string `ini:"clash_root"`
}

// legacyDTO mirrors the clash.ini file used before clashctl read TOML:
//
//	[container]
//	command = podman
//	image = docker.io/metacubex/mihomo:latest
//	workdir = /root/.config/mihomo/
//
//	[instance]
//	name = utun
//	subscription = https://...
//	clash_root = /config/clash
//
// Sections decode into slices so that a missing section is empty rather than
// an error. When a section is repeated the last one wins.
type legacyDTO struct {
	Container []legacyContainer `ini:"container"`
	Instance  []legacyInstance  `ini:"instance"`
}

var legacyOptions = ini.Options{
	AllowNumberSignComments: true,
	AllowEmptyValues:        true,
}

// parseLegacyDTO parses clash.ini content. Empty values are treated as unset.
func parseLegacyDTO(data []byte) (configDTO, error) {
	var legacy legacyDTO
	if err := ini.UnmarshalWithOptions(normalizeLegacy(data), &legacy, legacyOptions); err != nil {
		return configDTO{}, fmt.Errorf("failed to parse INI: %w", err)
	}

	set := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}

	var dto configDTO
	if n := len(legacy.Container); n > 0 {
		c := legacy.Container[n-1]
		dto.ContainerCommand = set(c.Command)
		dto.ContainerImage = set(c.Image)
		dto.ContainerWorkdir = set(c.Workdir)
	}
	if n := len(legacy.Instance); n > 0 {
		i := legacy.Instance[n-1]
		dto.InstanceName = set(i.Name)
		dto.Subscription = set(i.Subscription)
		dto.ClashRoot = set(i.ClashRoot)
	}
	return dto, nil
}

// normalizeLegacy rewrites "key = value" lines as "key=value" with a lower
// case key. go-ini keeps the blanks around '=' as part of the key and value,
// while clash.ini files are written for Python's configparser which strips
// them.
func normalizeLegacy(data []byte) []byte {
	var b strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.ContainsAny(line[:1], "[;#") {
			if key, value, ok := strings.Cut(line, "="); ok {
				line = strings.ToLower(strings.TrimSpace(key)) + "=" + strings.TrimSpace(value)
			}
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// readLegacyFile loads clash.ini. A missing file yields an empty DTO.
func readLegacyFile(path string) (configDTO, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return configDTO{}, nil
		}
		return configDTO{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	dto, err := parseLegacyDTO(data)
	if err != nil {
		return configDTO{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return dto, nil
}
