package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"

	"hedera-agent-kit/pkg/kit"
)

// Loader resolves plugin binaries into Plugin implementations.
type Loader interface {
	Load(path string) (Plugin, error)
}

// GoPluginLoader uses the Go standard library plugin mechanism to dynamically load modules.
type GoPluginLoader struct{}

// Load opens the shared object and searches for a `Plugin` symbol. The symbol
// may be a plugin.Plugin, a kit.Plugin variable, or a constructor of either.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, err
	}
	return fromSymbol(symbol)
}

func fromSymbol(symbol any) (Plugin, error) {
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil || *p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	case *kit.Plugin:
		if p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return Builtin(*p), nil
	case func() kit.Plugin:
		return Builtin(p()), nil
	default:
		return nil, fmt.Errorf("plugin symbol of type %T must implement plugin.Plugin", symbol)
	}
}
