//go:build futx_cachelinesize_64

package opt

// CacheLineSize_ is forced by the futx_cachelinesize_64 build tag.
const CacheLineSize_ uintptr = 64
