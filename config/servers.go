package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/mcpchat/session"
)

// ServerFile is the server definition file shape shared by the JSON and
// YAML forms.
type ServerFile struct {
	MCPServers map[string]session.ServerDefinition `json:"mcpServers" yaml:"mcpServers"`
}

// LoadServers reads a server definition file. .yaml and .yml files are
// decoded as YAML and everything else as JSON. Environment references in
// commands, args and env values are expanded.
func LoadServers(path string) (map[string]session.ServerDefinition, error) {
	// #nosec G304 -- path comes from local config.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config %q: %w", path, err)
	}

	var file ServerFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing server config %q: %w", path, err)
	}

	servers := make(map[string]session.ServerDefinition, len(file.MCPServers))
	for name, def := range file.MCPServers {
		name = strings.TrimSpace(name)
		def.Command = strings.TrimSpace(expandEnvValue(def.Command))
		if name == "" {
			return nil, fmt.Errorf("server config %q: empty server name", path)
		}
		if def.Command == "" {
			return nil, fmt.Errorf("server config %q: server %q: command is required", path, name)
		}
		def.Args = expandStrings(def.Args)
		def.Env = expandStringMap(def.Env)
		servers[name] = def
	}
	return servers, nil
}

func expandStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, expandEnvValue(value))
	}
	return out
}

func expandStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = expandEnvValue(value)
	}
	return out
}
