package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterPreventsDuplicates(t *testing.T) {
	const id = "test.unique.permission"
	require.NoError(t, Register(Permission{ID: id, Module: "test"}))
	t.Cleanup(func() { unregister(id) })

	require.ErrorIs(t, Register(Permission{ID: id, Module: "test"}), errDuplicateID)
}

func TestRegisterValidatesDefinition(t *testing.T) {
	require.ErrorIs(t, Register(Permission{ID: "  "}), errEmptyID)
	require.ErrorIs(t, Register(Permission{ID: "self.dep", DependsOn: []string{"self.dep"}}), errSelfDependency)
}

func TestRegisterNormalisesDependencies(t *testing.T) {
	const id = "test.normalised"
	require.NoError(t, Register(Permission{ID: id, DependsOn: []string{MessageView, " ", MessageView}}))
	t.Cleanup(func() { unregister(id) })

	perm, ok := Get(id)
	require.True(t, ok)
	require.Equal(t, []string{MessageView}, perm.DependsOn)
}

func TestResolveDependenciesReturnsTransitiveClosure(t *testing.T) {
	ids := []string{"perm.base", "perm.mid", "perm.top"}
	require.NoError(t, Register(Permission{ID: ids[0], Module: "test"}))
	require.NoError(t, Register(Permission{ID: ids[1], Module: "test", DependsOn: []string{ids[0]}}))
	require.NoError(t, Register(Permission{ID: ids[2], Module: "test", DependsOn: []string{ids[1]}}))
	t.Cleanup(func() {
		for _, id := range ids {
			unregister(id)
		}
	})

	deps, err := ResolveDependencies(ids[2])
	require.NoError(t, err)
	require.Equal(t, []string{ids[0], ids[1]}, deps)
}

func TestResolveDependenciesDetectsCycles(t *testing.T) {
	const (
		first  = "perm.cycle.first"
		second = "perm.cycle.second"
	)
	require.NoError(t, Register(Permission{ID: first, Module: "test", DependsOn: []string{second}}))
	require.NoError(t, Register(Permission{ID: second, Module: "test", DependsOn: []string{first}}))
	t.Cleanup(func() {
		unregister(first)
		unregister(second)
	})

	_, err := ResolveDependencies(first)
	require.ErrorIs(t, err, ErrCircularDependency)
}

func TestResolveDependenciesUnknown(t *testing.T) {
	_, err := ResolveDependencies("does.not.exist")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCorePermissionsRegistered(t *testing.T) {
	for _, id := range []string{MessageView, MessageDelete, ToolView, ToolManage, ToolLaunch, CourseView, CourseManage, AuditView, SettingsManage, UserManage} {
		_, ok := Get(id)
		require.True(t, ok, id)
	}

	deps, err := ResolveDependencies(ToolManage)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{ToolView, CourseView}, deps)
}
