//go:build futx_cachelinesize_256

package opt

// CacheLineSize_ is forced by the futx_cachelinesize_256 build tag.
const CacheLineSize_ uintptr = 256
