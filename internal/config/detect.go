package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Detection struct {
	ComposeFile  string
	HasEnvFile   bool
	HasTargetKey bool
	Services     []string
}

// Found reports whether dir looks like a compose stack.
func (d Detection) Found() bool { return d.ComposeFile != "" }

// Detect inspects dir for a docker compose stack and returns which of the
// default managed services it defines, in default order.
func Detect(dir string) Detection {
	defaults := DefaultSettings().Stack

	var det Detection
	composeFiles := []string{
		"compose.yaml",
		"compose.yml",
		"docker-compose.yml",
		"docker-compose.yaml",
	}
	for _, f := range composeFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			det.ComposeFile = f
			break
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, defaults.EnvFile)); err == nil {
		det.HasEnvFile = true
		det.HasTargetKey = hasKey(data, defaults.TargetKey)
	}

	if det.ComposeFile == "" {
		return det
	}

	data, err := os.ReadFile(filepath.Join(dir, det.ComposeFile))
	if err != nil {
		return det
	}
	var compose struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &compose); err != nil {
		return det
	}
	for _, name := range defaults.Services {
		if _, ok := compose.Services[name]; ok {
			det.Services = append(det.Services, name)
		}
	}
	return det
}

func hasKey(data []byte, key string) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimPrefix(strings.TrimSpace(sc.Text()), "export ")
		if k, _, ok := strings.Cut(line, "="); ok && strings.TrimSpace(k) == key {
			return true
		}
	}
	return false
}
