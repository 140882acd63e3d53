//go:build futx_cachelinesize_32

package opt

// CacheLineSize_ is forced by the futx_cachelinesize_32 build tag.
const CacheLineSize_ uintptr = 32
