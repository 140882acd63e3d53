//go:build futx_cachelinesize_128

package opt

// CacheLineSize_ is forced by the futx_cachelinesize_128 build tag.
const CacheLineSize_ uintptr = 128
