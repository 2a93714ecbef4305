package rules

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Swap(t *testing.T) {
	store := NewStore(nil)
	assert.Equal(t, 6, store.For("x").MaxDepth)

	book, err := NewLoader(zerolog.Nop()).Parse([]byte("defaults:\n  max_depth: 2\n"))
	require.NoError(t, err)
	store.Swap(book)
	assert.Equal(t, 2, store.For("x").MaxDepth)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeRules(t, "defaults:\n  max_depth: 3\n")
	loader := NewLoader(zerolog.Nop())
	book, err := loader.Load(path)
	require.NoError(t, err)
	store := NewStore(book)

	reloaded := make(chan *Book, 4)
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnReload: func(b *Book) { reloaded <- b },
	}, loader, store, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_depth: 9\n"), 0644))

	select {
	case b := <-reloaded:
		assert.Equal(t, 9, b.For("x").MaxDepth)
	case <-time.After(3 * time.Second):
		t.Fatal("rules were not reloaded")
	}
	assert.Equal(t, 9, store.For("x").MaxDepth)
}

func TestWatcher_KeepsPreviousRulesOnError(t *testing.T) {
	path := writeRules(t, "defaults:\n  max_depth: 3\n")
	loader := NewLoader(zerolog.Nop())
	book, err := loader.Load(path)
	require.NoError(t, err)
	store := NewStore(book)

	w, err := NewWatcher(WatcherConfig{Path: path, Debounce: 10 * time.Millisecond}, loader, store, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  max_depth: nope\n"), 0644))
	w.reload()
	assert.Equal(t, 3, store.For("x").MaxDepth)
	require.NoError(t, w.Stop())
}
