// Package media implements the MJPEG source demuxer (VideoStream) and the
// Renderer sink boundary.
package media

import (
	"bytes"
	"io"
	"os"
	"strconv"
)

// eoi is the JPEG end-of-image marker.
var eoi = []byte{0xff, 0xd9}

// lengthPrefixSize is the number of bytes read to decide whether a frame
// uses the length-prefixed or raw-MJPEG format.
const lengthPrefixSize = 5

// scanChunk is the read granularity used while scanning forward for EOI,
// matching the reference's 10KB chunked read for throughput.
const scanChunk = 10240

// VideoStream lazily demuxes a file containing either length-prefixed
// frames or a raw concatenation of JPEG images delimited by SOI/EOI.
// The format is auto-detected independently for every frame. It is not
// safe for concurrent use; the ServerWorker that owns a VideoStream calls
// NextFrame from a single goroutine.
type VideoStream struct {
	file     *os.File
	pending  []byte // bytes already read from file but not yet consumed
	frameNum int
}

// Open opens filename for reading and returns a VideoStream positioned at
// its start. The caller must call Close when done.
func Open(filename string) (*VideoStream, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &VideoStream{file: f}, nil
}

// read fills p from the pending pushback buffer first, then the file,
// returning however many bytes were actually available (like io.ReadFull,
// but tolerant of a short final read at EOF).
func (v *VideoStream) read(p []byte) (int, error) {
	total := 0
	if len(v.pending) > 0 {
		n := copy(p, v.pending)
		v.pending = v.pending[n:]
		total += n
		if total == len(p) {
			return total, nil
		}
	}
	n, err := io.ReadFull(v.file, p[total:])
	total += n
	return total, err
}

// unread pushes bytes read past a frame boundary back in front of the
// stream so the next NextFrame call sees them first.
func (v *VideoStream) unread(extra []byte) {
	if len(extra) == 0 {
		return
	}
	v.pending = append(append([]byte{}, extra...), v.pending...)
}

// NextFrame returns the next frame's bytes, or nil with io.EOF when the
// stream is exhausted.
func (v *VideoStream) NextFrame() ([]byte, error) {
	prefix := make([]byte, lengthPrefixSize)
	n, err := v.read(prefix)
	if n == 0 {
		if err != nil {
			return nil, io.EOF
		}
	}
	prefix = prefix[:n]

	if length, perr := strconv.Atoi(string(prefix)); perr == nil && length >= 0 {
		frame := make([]byte, length)
		got, _ := v.read(frame)
		v.frameNum++
		return frame[:got], nil
	}

	return v.scanRawFrame(prefix)
}

// scanRawFrame treats `head` as the start of a raw JPEG frame and scans
// forward until the first EOI marker, reading in scanChunk-sized chunks.
// Bytes read past the EOI are pushed back so the next NextFrame call sees
// them first.
func (v *VideoStream) scanRawFrame(head []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.Write(head)

	for {
		if idx := bytes.Index(buf.Bytes(), eoi); idx != -1 {
			frameEnd := idx + len(eoi)
			data := buf.Bytes()
			frame := make([]byte, frameEnd)
			copy(frame, data[:frameEnd])

			v.unread(data[frameEnd:])
			v.frameNum++
			return frame, nil
		}

		chunk := make([]byte, scanChunk)
		n, err := v.read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if n > 0 && bytes.Contains(buf.Bytes(), eoi) {
				continue
			}
			if buf.Len() > 0 {
				v.frameNum++
				return buf.Bytes(), nil
			}
			return nil, io.EOF
		}
	}
}

// FrameNum returns the number of frames returned so far.
func (v *VideoStream) FrameNum() int { return v.frameNum }

// Reset rewinds the stream to its start and zeros the frame counter.
func (v *VideoStream) Reset() error {
	if _, err := v.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	v.pending = nil
	v.frameNum = 0
	return nil
}

// Close releases the underlying file handle.
func (v *VideoStream) Close() error {
	return v.file.Close()
}
