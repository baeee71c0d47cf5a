package telemetry

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns each chunk from a separate Read call
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r *Reader) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := r.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestReaderSplitAcrossReads(t *testing.T) {
	splits := [][]string{
		{"<BA", "ND>5</B", "AND>"},
		{"<", "BAND>5<", "/BAND>"},
		{"<BAND>", "5", "</BAND>"},
	}

	for _, chunks := range splits {
		t.Run(strings.Join(chunks, "|"), func(t *testing.T) {
			r := NewReader(&chunkReader{chunks: chunks}, TagBand)
			events, err := collect(t, r)

			assert.ErrorIs(t, err, io.EOF)
			require.Len(t, events, 1)
			assert.Equal(t, TagBand, events[0].Tag)
			assert.Equal(t, "5", events[0].Value)
		})
	}
}

func TestReaderOneByteAtATime(t *testing.T) {
	stream := "junk<CMD><BAND>40</BAND><MODE>SSB</MODE>more<BAND>20</BAND>"
	r := NewReader(iotest.OneByteReader(strings.NewReader(stream)), TagBand)
	events, err := collect(t, r)

	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 2)
	assert.Equal(t, "40", events[0].Value)
	assert.Equal(t, "20", events[1].Value)
}

func TestReaderIgnoresOtherTags(t *testing.T) {
	stream := "<FREQ>14.074</FREQ><BAND>20</BAND><FREQ>14.075</FREQ>"
	r := NewReader(strings.NewReader(stream), TagFrequency)
	events, err := collect(t, r)

	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 2)
	assert.Equal(t, "14.074", events[0].Value)
	assert.Equal(t, "14.075", events[1].Value)
	assert.Equal(t, TagFrequency, r.Tag())
}

func TestReaderUnterminatedSpan(t *testing.T) {
	r := NewReader(strings.NewReader("<BAND>5"), TagBand)
	events, err := collect(t, r)

	assert.Empty(t, events)
	assert.True(t, errors.Is(err, ErrTruncated))

	// The sequence stays ended
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReaderClosingWithoutOpening(t *testing.T) {
	r := NewReader(strings.NewReader("5</BAND><BAND>20</BAND>"), TagBand)
	events, err := collect(t, r)

	assert.Empty(t, events)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReaderSpanTooLong(t *testing.T) {
	stream := "<BAND>" + strings.Repeat("x", MaxSpan+10)
	r := NewReader(strings.NewReader(stream), TagBand)
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrSpanTooLong)
}

func TestReaderNoiseIsBounded(t *testing.T) {
	stream := strings.Repeat("<MODE>CW</MODE>", 10000) + "<BAND>17</BAND>"
	r := NewReader(strings.NewReader(stream), TagBand)
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "17", ev.Value)
}

func TestReaderRun(t *testing.T) {
	r := NewReader(strings.NewReader("<BAND>80</BAND><BAND>40</BAND>"), TagBand)
	out := make(chan Event, 2)

	err := r.Run(context.Background(), out)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, out, 2)
	assert.Equal(t, "80", (<-out).Value)
	assert.Equal(t, "40", (<-out).Value)
}

func TestReaderRunCancelled(t *testing.T) {
	r := NewReader(strings.NewReader("<BAND>80</BAND>"), TagBand)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, make(chan Event))
	assert.ErrorIs(t, err, context.Canceled)
}
