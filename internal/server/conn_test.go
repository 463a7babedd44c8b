package server

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineConn_ReadMessage(t *testing.T) {
	client, srv := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	conn := NewLineConn(srv)
	t.Cleanup(func() { _ = conn.Close() })

	atLimit := strings.Repeat("x", MaxMessageSize)
	overLimit := strings.Repeat("y", MaxMessageSize+1)

	go func() {
		_, _ = io.WriteString(client, "first\r\n\n"+atLimit+"\n"+overLimit+"\n"+"last")
		_ = client.Close()
	}()

	ctx := context.Background()
	read := func() ([]byte, error) { return conn.ReadMessage(ctx) }

	got, err := read()
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = read()
	require.NoError(t, err)
	assert.Len(t, got, MaxMessageSize)

	_, err = read()
	require.ErrorIs(t, err, ErrMessageTooLarge)

	got, err = read()
	require.NoError(t, err)
	assert.Equal(t, "last", string(got))

	_, err = read()
	require.ErrorIs(t, err, io.EOF)
}
