package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrameRoundTrip(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"hover"}`)
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteBody(body))

	f, err := NewReader(&buf).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, len(body), f.ContentLength)
	assert.Equal(t, body, f.Body)
}

func TestReadFrameByteForByteForwarding(t *testing.T) {
	raw := "Content-Length: 13\r\n\r\n" + `{"a":"hello"}`
	f, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte(raw), f.Bytes())
}

func TestReadFrameHeaderKeyCaseInsensitive(t *testing.T) {
	raw := "content-LENGTH: 2\r\n\r\n{}"
	f, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), f.Body)
}

func TestReadFrameZeroContentLengthIsValid(t *testing.T) {
	raw := "Content-Length: 0\r\n\r\n"
	f, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, 0, f.ContentLength)
	assert.Empty(t, f.Body)
}

func TestReadFrameUnknownHeaderIgnored(t *testing.T) {
	raw := "X-Custom: whatever\r\nContent-Length: 2\r\n\r\nok"
	f, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), f.Body)
}

func TestReadFrameMissingContentLengthIsCodecError(t *testing.T) {
	raw := "X-Custom: whatever\r\n\r\nok"
	_, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "codec:")
}

func TestReadFrameNonNumericContentLengthIsCodecError(t *testing.T) {
	raw := "Content-Length: abc\r\n\r\n"
	_, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "codec:")
}

func TestReadFrameNegativeContentLengthIsCodecError(t *testing.T) {
	raw := "Content-Length: -1\r\n\r\n"
	_, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "codec:")
}

func TestReadFrameCleanEOFAtBoundary(t *testing.T) {
	_, err := NewReader(bytes.NewBufferString("")).ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTruncatedBodyIsError(t *testing.T) {
	raw := "Content-Length: 10\r\n\r\nshort"
	_, err := NewReader(bytes.NewBufferString(raw)).ReadFrame()
	assert.Error(t, err)
}

func TestReadFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteBody([]byte(`{"n":1}`)))
	require.NoError(t, w.WriteBody([]byte(`{"n":2}`)))

	r := NewReader(&buf)
	f1, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(f1.Body))

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(f2.Body))

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
