package mqtt

import "github.com/sweeney/irrigation-controller/internal/logger"

type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds messages published while the broker is unreachable.
// When full the oldest message is overwritten. Caller must synchronize.
type ringBuffer struct {
	log      *logger.Logger
	buf      []bufferedMsg
	next     int
	count    int
	dropping bool
}

func newRingBuffer(capacity int, log *logger.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ringBuffer{log: log, buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.next] = msg
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	if !r.dropping {
		r.log.Warnw("offline buffer full, dropping oldest", "capacity", len(r.buf))
		r.dropping = true
	}
}

// drain returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, 0, r.count)
	first := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(first+i)%len(r.buf)])
	}
	r.next, r.count, r.dropping = 0, 0, false
	return out
}

func (r *ringBuffer) len() int { return r.count }
