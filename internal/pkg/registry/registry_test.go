package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name     string
	priority int
	err      error
	order    *[]string
}

func (m *fakeModule) Name() string  { return m.name }
func (m *fakeModule) Priority() int { return m.priority }
func (m *fakeModule) Init(ctx *ModuleContext) error {
	*m.order = append(*m.order, m.name)
	return m.err
}

func withCleanRegistry(t *testing.T) {
	t.Helper()
	saved := moduleRegistry
	moduleRegistry = make(map[string]Module)
	t.Cleanup(func() { moduleRegistry = saved })
}

func TestInitModulesOrder(t *testing.T) {
	withCleanRegistry(t)
	var order []string

	Register(&fakeModule{name: "wallet", priority: 50, order: &order})
	Register(&fakeModule{name: "user", priority: 10, order: &order})
	Register(&fakeModule{name: "content", priority: 20, order: &order})
	Register(&fakeModule{name: "account", priority: 20, order: &order})

	require.NoError(t, InitModules(&ModuleContext{}))
	assert.Equal(t, []string{"user", "account", "content", "wallet"}, order)
}

func TestInitModulesStopsOnError(t *testing.T) {
	withCleanRegistry(t)
	var order []string
	boom := errors.New("boom")

	Register(&fakeModule{name: "a", priority: 1, order: &order, err: boom})
	Register(&fakeModule{name: "b", priority: 2, order: &order})

	err := InitModules(&ModuleContext{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, order)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	withCleanRegistry(t)
	var order []string
	Register(&fakeModule{name: "user", order: &order})
	assert.Panics(t, func() { Register(&fakeModule{name: "user", order: &order}) })
}

func TestBackgroundJobsStopWithLifecycle(t *testing.T) {
	lifecycle, cancel := context.WithCancel(context.Background())
	mc := &ModuleContext{Lifecycle: lifecycle}

	stopped := make(chan struct{})
	mc.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	cancel()
	mc.Wait()
	select {
	case <-stopped:
	default:
		t.Fatal("job did not observe cancellation")
	}
}
