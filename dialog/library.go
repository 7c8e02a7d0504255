package dialog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed flows/*.yaml
var defaultFlows embed.FS

// EntryFlowID names the flow a fresh conversation starts in.
const EntryFlowID = "general"

// Library holds every loaded flow and guarantees the cross-flow invariants:
// transfer targets exist, the entry flow exists and the global fallback flow
// exists. A library that fails validation never reaches the manager, so a
// transition to an undefined target cannot happen at runtime.
type Library struct {
	flows map[string]*Flow
	log   *logrus.Logger
}

// LoadLibrary reads the built-in flow definitions and, when dir is not
// empty, overlays *.yaml files found there. A file whose flow id matches a
// built-in flow replaces it, which is how deployments customize dialogs
// without forking the binary.
func LoadLibrary(dir string, log *logrus.Logger) (*Library, error) {
	lib := &Library{flows: make(map[string]*Flow), log: log}

	entries, err := defaultFlows.ReadDir("flows")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in flows: %w", err)
	}
	for _, e := range entries {
		data, err := defaultFlows.ReadFile("flows/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in flow %s: %w", e.Name(), err)
		}
		if err := lib.add(data, e.Name()); err != nil {
			return nil, err
		}
	}

	if dir != "" {
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read flows directory %s: %w", dir, err)
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".yaml") {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("failed to read flow file %s: %w", name, err)
			}
			if err := lib.add(data, name); err != nil {
				return nil, err
			}
		}
	}

	if err := lib.validate(); err != nil {
		return nil, err
	}

	log.WithField("flows", len(lib.flows)).Info("Dialog flow library loaded")
	return lib, nil
}

func (l *Library) add(data []byte, source string) error {
	f, err := ParseFlow(data)
	if err != nil {
		return fmt.Errorf("flow file %s: %w", source, err)
	}
	if prev, ok := l.flows[f.ID]; ok && prev != nil {
		l.log.WithFields(logrus.Fields{
			"flow":   f.ID,
			"source": source,
		}).Info("Flow definition overridden")
	}
	l.flows[f.ID] = f
	return nil
}

// validate runs the cross-flow checks that individual flow validation
// cannot: referenced flows must exist and the entry and fallback flows must
// be present.
func (l *Library) validate() error {
	if _, ok := l.flows[EntryFlowID]; !ok {
		return fmt.Errorf("flow library is missing the %q entry flow", EntryFlowID)
	}
	if _, ok := l.flows[FallbackFlowID]; !ok {
		return fmt.Errorf("flow library is missing the global %q flow", FallbackFlowID)
	}
	for _, f := range l.flows {
		for _, n := range f.Nodes {
			a := n.action()
			if a.Kind != ActionTransferFlow {
				continue
			}
			if _, ok := l.flows[a.Flow]; !ok {
				return fmt.Errorf("flow %q node %q transfers to undefined flow %q", f.ID, n.ID, a.Flow)
			}
		}
	}
	return nil
}

// Flow returns the flow with the given id, or nil.
func (l *Library) Flow(id string) *Flow {
	return l.flows[id]
}

// FlowIDs returns the loaded flow ids in sorted order.
func (l *Library) FlowIDs() []string {
	ids := make([]string, 0, len(l.flows))
	for id := range l.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
