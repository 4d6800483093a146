package xls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanParse(t *testing.T) {
	header := append(append([]byte{}, oleMagic...), make([]byte, 8)...)
	p := NewParser()
	assert.True(t, p.CanParse("stmt.xls", "", header))
	assert.True(t, p.CanParse("STMT.XLS", "", header))
	assert.True(t, p.CanParse("upload", "application/vnd.ms-excel", header))
	// Word 97 documents share the compound file signature.
	assert.False(t, p.CanParse("letter.doc", "application/msword", header))
	assert.False(t, p.CanParse("stmt.xls", "", []byte("Date,Amount\n")))
	assert.False(t, p.CanParse("stmt.xls", "", oleMagic[:4]))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("Date,Amount\n05/01/2024,10\n"))
	assert.Error(t, err)
}

func TestParseTruncatedCompoundFile(t *testing.T) {
	inputs := map[string][]byte{
		"signature only": append([]byte{}, oleMagic...),
		"short header":   append(append([]byte{}, oleMagic...), make([]byte, 40)...),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = NewParser().Parse(context.Background(), data)
			})
			assert.Error(t, err)
		})
	}
}

func TestParseHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser().Parse(ctx, append([]byte{}, oleMagic...))
	assert.ErrorIs(t, err, context.Canceled)
}
