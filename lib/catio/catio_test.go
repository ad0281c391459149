package catio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadParticles(t *testing.T) {
	text := `# x y z id
0.5 1.5  2.5 7
3.0	4.0 5.0 8 # trailing comment

6 7 8 9
`
	r, err := Text([]byte(text))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	pos, id, err := r.ReadParticles(3)
	require.NoError(t, err)
	assert.Equal(t, [][3]float64{{0.5, 1.5, 2.5}, {3, 4, 5}, {6, 7, 8}}, pos)
	assert.Equal(t, []uint64{7, 8, 9}, id)

	pos, _, err = r.ReadParticles(2)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{3, 4, 0}, pos[1])
}

func TestTextConfig(t *testing.T) {
	config := TextConfig{
		Separator:   ',',
		Comment:     '%',
		SkipLines:   1,
		ColumnNames: map[string]int{"x": 2, "y": 0},
		MaxLineSize: 1 << 10,
	}
	text := "y,junk,x\n1, a, 2\n% comment\n3, b, 4\n"

	r, err := Text([]byte(text), config)
	require.NoError(t, err)

	pos, id, err := r.ReadParticles(2)
	require.NoError(t, err)
	assert.Equal(t, [][3]float64{{2, 1, 0}, {4, 3, 0}}, pos)
	assert.Equal(t, []uint64{0, 1}, id)

	cols, err := r.ReadFloat64s([]int{0})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, cols[0])
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		text    string
		columns interface{}
	}{
		{"1 2 3\n", []int{3}},
		{"1 2 3\n", []string{"w"}},
		{"1 2 3\n", []float64{0}},
		{"1 two 3\n", []int{1}},
	}

	for i := range tests {
		r, err := Text([]byte(tests[i].text))
		require.NoError(t, err, "%d)", i)
		_, err = r.ReadFloat64s(tests[i].columns)
		assert.Error(t, err, "%d)", i)
	}

	r, err := Text([]byte("1 2 3 -4\n"))
	require.NoError(t, err)
	_, _, err = r.ReadParticles(3)
	assert.Error(t, err)
	_, _, err = r.ReadParticles(4)
	assert.Error(t, err)
}

func TestTextFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "particles.txt")
	require.NoError(t, os.WriteFile(fname, []byte("1 1 1 0\n2 2 2 1\n"), 0644))

	r, err := TextFile(fname)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	_, err = TextFile(fname + ".missing")
	assert.Error(t, err)
}
