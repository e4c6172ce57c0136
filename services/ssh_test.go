package services

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flushingWriter struct {
	bytes.Buffer
	writeErr error
	closeErr error
	closed   int
}

func (w *flushingWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.Buffer.Write(p)
}

func (w *flushingWriter) Close() error {
	w.closed++
	return w.closeErr
}

func TestWriteAndClose(t *testing.T) {
	flushFailed := errors.New("sftp: failure flushing final packet")
	writeFailed := errors.New("connection lost")

	tests := []struct {
		name    string
		w       *flushingWriter
		wantErr error
	}{
		{"success", &flushingWriter{}, nil},
		{"close error is reported", &flushingWriter{closeErr: flushFailed}, flushFailed},
		{"write error wins over close", &flushingWriter{writeErr: writeFailed, closeErr: flushFailed}, writeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := writeAndClose(tt.w, []byte("<?php\n"))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.Equal(t, "<?php\n", tt.w.String())
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, tt.w.closed)
		})
	}
}
