package progress

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsCumulativeBytes(t *testing.T) {
	var calls [][2]int64

	r := NewReader(strings.NewReader("hello world"), 11, func(n, total int64) {
		calls = append(calls, [2]int64{n, total})
	})

	buf := make([]byte, 4)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
	}

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int64{11, 11}, calls[len(calls)-1])
	assert.Equal(t, int64(11), r.N())

	for i := 1; i < len(calls); i++ {
		assert.Greater(t, calls[i][0], calls[i-1][0])
	}
}

func TestReader_NilFunc(t *testing.T) {
	r := NewReader(strings.NewReader("abc"), 3, nil)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestBars_DisabledIsNoop(t *testing.T) {
	var out bytes.Buffer

	bars := NewBars(&out, false)

	fn, finish := bars.Transfer("download report.pdf")
	fn(10, 100)
	finish()

	run := bars.Run("files", 3)
	run.Increment()
	run.Finish()

	assert.Zero(t, out.Len())
}

func TestBars_NilIsNoop(t *testing.T) {
	var bars *Bars

	fn, finish := bars.Transfer("x")
	fn(1, 2)
	finish()
	bars.Run("files", 1).Finish()
}

func TestBars_EnabledWritesToOutput(t *testing.T) {
	var out bytes.Buffer

	bars := NewBars(&out, true)

	fn, finish := bars.Transfer("upload a.txt")
	fn(50, 100)
	fn(100, 100)
	finish()

	assert.Contains(t, out.String(), "upload a.txt")
}

func TestEnabled_QuietWins(t *testing.T) {
	assert.False(t, Enabled(os.Stderr, true))
}

func TestEnabled_NonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, Enabled(f, false))
}
