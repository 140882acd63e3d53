//go:build !futx_cachelinesize_32 && !futx_cachelinesize_64 && !futx_cachelinesize_128 && !futx_cachelinesize_256

package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize_ is used to keep hot futex words on separate cache lines.
// It's detected by the `golang.org/x/sys/cpu` package unless overridden by a
// futx_cachelinesize_* build tag.
const CacheLineSize_ = unsafe.Sizeof(cpu.CacheLinePad{})
