package recycler

import (
	"fmt"
	"runtime/debug"
)

const poisonPattern uint64 = 0xDEADBEEFDEADBEEF

func (r *RecyclerImpl) guardDoublePut(buf *Buffer) {
	if buf == nil {
		return
	}
	if _, loaded := r.putTracker.LoadOrStore(buf, struct{}{}); loaded {
		r.metrics.incDoublePut()
		panic(fmt.Sprintf("recycler: double-put detected for %p\n%s", buf, debug.Stack()))
	}
}

func (r *RecyclerImpl) releasePointer(buf *Buffer) {
	if buf == nil {
		return
	}
	r.putTracker.Delete(buf)
}

func poisonBuffer(buf *Buffer) {
	if buf == nil {
		return
	}
	buf.poison = poisonPattern
}
