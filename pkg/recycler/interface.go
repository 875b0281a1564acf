package recycler

// Recycler defines the centralized gateway for leasing and returning handler buffers.
type Recycler interface {
	Checkout() *Buffer
	Recycle(buf *Buffer)
	EnableDebugMode()
	DisableDebugMode()
}
