// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import "unsafe"

func loadU64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}
