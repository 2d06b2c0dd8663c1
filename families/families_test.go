package families

import (
	"context"
	"testing"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netpush/plugin"
	"github.com/damianoneill/netpush/plugin/junos"
	"github.com/damianoneill/netpush/plugin/shell"
)

func TestBuiltinFamilies(t *testing.T) {
	assert.Subset(t, Names(), []string{"junos", "shell"})

	p, err := New("junos", "r1")
	assert.NoError(t, err)
	assert.IsType(t, &junos.Plugin{}, p)

	p, err = New("shell", "sw1")
	assert.NoError(t, err)
	assert.IsType(t, &shell.Plugin{}, p)
}

func TestUnknownFamily(t *testing.T) {
	_, err := New("ios-xr", "r1")
	assert.True(t, plugin.IsKind(err, plugin.KindUnsupported))
	assert.Contains(t, err.Error(), `"ios-xr"`)
}

type stubPlugin struct {
	plugin.Plugin
	equipment plugin.EquipmentID
}

func (s *stubPlugin) Connect(ctx context.Context) error { return nil }

func TestRegister(t *testing.T) {
	Register("stub", func(equipment plugin.EquipmentID, opts ...plugin.Option) plugin.Plugin {
		return &stubPlugin{equipment: equipment}
	})
	defer func() {
		mu.Lock()
		delete(constructors, "stub")
		mu.Unlock()
	}()

	assert.Contains(t, Names(), "stub")
	p, err := New("stub", "lab1")
	assert.NoError(t, err)
	assert.Equal(t, plugin.EquipmentID("lab1"), p.(*stubPlugin).equipment)
	assert.NoError(t, p.Connect(context.Background()))
}
