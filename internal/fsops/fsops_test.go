package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "sites-available"), filepath.Join(dir, "sites-enabled"), filepath.Join(dir, "html"))
}

func TestMaterializeCreatesFileAndSymlink(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.Materialize("host.conf", []byte("server {}"), true))

	data, err := os.ReadFile(filepath.Join(r.AvailableDir, "host.conf"))
	require.NoError(t, err)
	assert.Equal(t, "server {}", string(data))

	link := filepath.Join(r.EnabledDir, "host.conf")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.AvailableDir, "host.conf"), target)
}

func TestMaterializeDisabledOmitsSymlink(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.Materialize("host.conf", []byte("server {}"), false))

	_, err := os.Lstat(filepath.Join(r.EnabledDir, "host.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestReMaterializeTogglesSymlink(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.Materialize("host.conf", []byte("a"), true))
	require.NoError(t, r.Materialize("host.conf", []byte("b"), false))

	_, err := os.Lstat(filepath.Join(r.EnabledDir, "host.conf"))
	assert.True(t, os.IsNotExist(err))

	data, _ := os.ReadFile(filepath.Join(r.AvailableDir, "host.conf"))
	assert.Equal(t, "b", string(data))
}

func TestWithdrawMissingFileIsNotError(t *testing.T) {
	r := newTestReconciler(t)
	assert.NoError(t, r.Withdraw("nonexistent.conf"))
}

func TestWithdrawRemovesBoth(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.Materialize("host.conf", []byte("a"), true))
	require.NoError(t, r.Withdraw("host.conf"))

	_, err := os.Lstat(filepath.Join(r.EnabledDir, "host.conf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(r.AvailableDir, "host.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadReturnsFalseWhenAbsent(t *testing.T) {
	r := newTestReconciler(t)
	_, ok := r.Read("missing.conf")
	assert.False(t, ok)
}

func TestWriteHTMLRoundTrips(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.WriteHTML("nubi_default.html", []byte("<h1>Be right back</h1>")))

	data, ok := r.ReadHTML("nubi_default.html")
	require.True(t, ok)
	assert.Equal(t, "<h1>Be right back</h1>", string(data))
}

func TestReadHTMLReturnsFalseWhenAbsent(t *testing.T) {
	r := newTestReconciler(t)
	_, ok := r.ReadHTML("missing.html")
	assert.False(t, ok)
}

func TestRemoveHTMLMissingFileIsNotError(t *testing.T) {
	r := newTestReconciler(t)
	assert.NoError(t, r.RemoveHTML("nonexistent.html"))
}

func TestRemoveHTMLDeletesFile(t *testing.T) {
	r := newTestReconciler(t)
	require.NoError(t, r.WriteHTML("nubi_error_503.html", []byte("down")))
	require.NoError(t, r.RemoveHTML("nubi_error_503.html"))

	_, ok := r.ReadHTML("nubi_error_503.html")
	assert.False(t, ok)
}
