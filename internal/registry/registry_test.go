package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

const sample = `
[[slot]]
address = "0x00000000000000000000000000000000000000a1"
type = "enabled"
name = "Homepage banner"
page = "home"
position = "top"
width = 728
height = 90

[[slot]]
address = "0x00000000000000000000000000000000000000a2"
type = "shielded"

[[slot]]
address = "0x00000000000000000000000000000000000000a3"
`

func TestParse(t *testing.T) {
	r, err := Parse(sample)
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	refs := r.Refs()
	assert.Equal(t, domain.SlotRef{Address: common.HexToAddress("0xa1"), Type: domain.SlotTypeEnabled, Index: 1}, refs[0])
	assert.Equal(t, domain.SlotRef{Address: common.HexToAddress("0xa2"), Type: domain.SlotTypeShielded, Index: 1}, refs[1])
	// type defaults to enabled, and the index counts within a type
	assert.Equal(t, domain.SlotRef{Address: common.HexToAddress("0xa3"), Type: domain.SlotTypeEnabled, Index: 2}, refs[2])

	md, ok := r.Lookup(common.HexToAddress("0xa1"))
	require.True(t, ok)
	assert.Equal(t, "Homepage banner", md.Name)
	assert.Equal(t, 90, md.Height)

	ref, ok := r.Ref(common.HexToAddress("0xa2"))
	require.True(t, ok)
	assert.Equal(t, domain.SlotTypeShielded, ref.Type)

	_, ok = r.Ref(common.HexToAddress("0xff"))
	assert.False(t, ok)
}

func TestParseReportsAllProblems(t *testing.T) {
	_, err := Parse(`
[[slot]]
address = "nope"

[[slot]]
address = "0x00000000000000000000000000000000000000a1"
type = "golden"

[[slot]]
address = "0x00000000000000000000000000000000000000a2"

[[slot]]
address = "0x00000000000000000000000000000000000000A2"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address")
	assert.Contains(t, err.Error(), "unknown type")
	assert.Contains(t, err.Error(), "duplicate address")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadExampleCatalogue(t *testing.T) {
	r, err := Load(filepath.Join("..", "..", "slots.example.toml"))
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	ref, ok := r.Ref(common.HexToAddress("0x2222222222222222222222222222222222222222"))
	require.True(t, ok)
	assert.Equal(t, domain.SlotTypeShielded, ref.Type)
	assert.Equal(t, 1, ref.Index)
}
