// Package families maps equipment family names onto plugin constructors.
package families

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/damianoneill/netpush/plugin"
	"github.com/damianoneill/netpush/plugin/junos"
	"github.com/damianoneill/netpush/plugin/shell"
)

// Constructor delivers a plugin for a single equipment.
type Constructor func(equipment plugin.EquipmentID, opts ...plugin.Option) plugin.Plugin

var (
	mu           sync.RWMutex
	constructors = map[string]Constructor{}
)

func init() {
	Register(junos.Family, func(equipment plugin.EquipmentID, opts ...plugin.Option) plugin.Plugin {
		return junos.New(equipment, opts...)
	})
	Register(shell.Family, func(equipment plugin.EquipmentID, opts ...plugin.Option) plugin.Plugin {
		return shell.New(equipment, opts...)
	})
}

// Register makes a family available by name, replacing any previous registration.
func Register(name string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	constructors[name] = c
}

// New delivers a plugin of the named family.
func New(name string, equipment plugin.EquipmentID, opts ...plugin.Option) (plugin.Plugin, error) {
	mu.RLock()
	c, ok := constructors[name]
	mu.RUnlock()
	if !ok {
		return nil, plugin.NewError(plugin.KindUnsupported, "new", string(equipment),
			errors.Errorf("unknown equipment family %q", name))
	}
	return c(equipment, opts...), nil
}

// Names delivers the registered family names in order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
