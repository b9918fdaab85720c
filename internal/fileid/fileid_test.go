package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceID(t *testing.T) {
	id := SourceID("/notes/physics.md")
	assert.Equal(t, id, SourceID("/notes/physics.md"))
	assert.True(t, strings.HasPrefix(id, prefix))
	assert.Len(t, id, len(prefix)+24)
	assert.NotEqual(t, id, SourceID("/notes/chemistry.md"))
}

func TestSourceID_Normalized(t *testing.T) {
	id := SourceID("/notes/physics")
	assert.Equal(t, id, SourceID("/notes/physics/"))
	assert.Equal(t, id, SourceID("/notes/./physics"))
	assert.Equal(t, id, SourceID("/notes/x/../physics"))
}

func TestResolve(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	abs, id, err := Resolve("physics.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "physics.md"), abs)
	assert.Equal(t, SourceID(abs), id)
}
