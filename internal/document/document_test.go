package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "plain ascii", in: []byte("hello world"), want: "hello world"},
		{name: "multibyte utf8", in: []byte("naïve café"), want: "naïve café"},
		{name: "invalid bytes dropped", in: []byte("ab\xffcd\xfe"), want: "abcd"},
		{name: "truncated sequence dropped", in: []byte("x\xe2\x82"), want: "x"},
		{name: "empty", in: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeText(tt.in))
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("paper.pdf", nil))
	assert.True(t, IsPDF("PAPER.PDF", nil))
	assert.True(t, IsPDF("upload", []byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF("notes.txt", []byte("plain text")))
	assert.False(t, IsPDF("", nil))
}

func TestDecode(t *testing.T) {
	t.Run("text file", func(t *testing.T) {
		text, err := Decode("notes.txt", []byte("PageRank ranks pages.\xff"))
		require.NoError(t, err)
		assert.Equal(t, "PageRank ranks pages.", text)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		_, err := Decode("broken.pdf", []byte("%PDF-1.4 this is not really a pdf"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnreadablePDF)
	})
}
