package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aipolab/aipo/internal/core"
)

// adaptersFile is the on-disk shape `--adapters-file` points at: a named
// list of AdapterSpec, matching spec §6's adapter config format
// ({name,kind,endpoint|command,auth,params,rate_limit,retry}) verbatim so a
// file written against the spec's documented shape loads without
// translation.
type adaptersFile struct {
	Adapters []core.AdapterSpec `yaml:"adapters"`
}

// resolveAdapterSpec loads path and returns the AdapterSpec named name,
// with model overriding spec.Model when non-empty (the CLI's --model flag
// always wins over whatever the file says, so one adapter entry can be
// reused across several model variants of the same provider).
func resolveAdapterSpec(path, name, model string) (core.AdapterSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.AdapterSpec{}, fmt.Errorf("%w: read adapters file %s: %v", core.ErrMissingConfiguration, path, err)
	}
	var file adaptersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return core.AdapterSpec{}, fmt.Errorf("%w: parse adapters file %s: %v", core.ErrInvalidConfiguration, path, err)
	}
	for _, spec := range file.Adapters {
		if spec.Name != name {
			continue
		}
		if model != "" {
			spec.Model = model
		}
		return spec, nil
	}
	return core.AdapterSpec{}, fmt.Errorf("%w: no adapter named %q in %s", core.ErrInvalidConfiguration, name, path)
}
