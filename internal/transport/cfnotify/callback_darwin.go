//go:build darwin && cgo

package cfnotify

/*
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>
*/
import "C"

import "runtime/cgo"

//export skylinkNotify
func skylinkNotify(observer C.uintptr_t, name *C.char, info C.CFDictionaryRef) {
	if name == nil {
		return
	}
	st, ok := cgo.Handle(observer).Value().(*observerState)
	if !ok {
		return
	}
	st.dispatch(readNotification(C.GoString(name), info))
}
