package telnet

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// feeder is the byte queue between the connection reader and the zlib
// decoder. Write never blocks; Read blocks until bytes arrive or the feeder
// is closed. It implements io.ByteReader so the decoder does not read ahead
// past the end of the compressed stream.
type feeder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newFeeder() *feeder {
	f := &feeder{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *feeder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	f.buf = append(f.buf, p...)
	f.cond.Broadcast()
	return len(p), nil
}

func (f *feeder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *feeder) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := f.Read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// takeAll closes the feeder and returns whatever the decoder did not consume.
func (f *feeder) takeAll() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	rest := f.buf
	f.buf = nil
	f.closed = true
	f.cond.Broadcast()
	return rest
}

func (f *feeder) close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// inflater decodes one MCCP v2 stream on its own goroutine and hands the
// plaintext back through post, in order, followed by a single done call.
type inflater struct {
	in *feeder
}

func startInflater(post func(func()), data func([]byte), done func(error)) *inflater {
	inf := &inflater{in: newFeeder()}
	go inf.run(post, data, done)
	return inf
}

func (inf *inflater) run(post func(func()), data func([]byte), done func(error)) {
	zr, err := zlib.NewReader(inf.in)
	if err != nil {
		post(func() { done(err) })
		return
	}
	defer zr.Close()

	buf := make([]byte, 16*1024)
	for {
		n, err := zr.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			post(func() { data(chunk) })
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			post(func() { done(err) })
			return
		}
	}
}

func (inf *inflater) write(p []byte) {
	_, _ = inf.in.Write(p)
}
