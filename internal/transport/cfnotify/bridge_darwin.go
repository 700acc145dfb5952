//go:build darwin && cgo

package cfnotify

/*
#cgo LDFLAGS: -framework CoreFoundation
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>
#include <stdlib.h>

extern void skylinkNotify(uintptr_t observer, char *name, CFDictionaryRef info);

static char *sk_utf8(CFStringRef s) {
	if (s == NULL) {
		return NULL;
	}
	CFIndex max = CFStringGetMaximumSizeForEncoding(CFStringGetLength(s), kCFStringEncodingUTF8) + 1;
	char *buf = malloc(max);
	if (buf == NULL) {
		return NULL;
	}
	if (!CFStringGetCString(s, buf, max, kCFStringEncodingUTF8)) {
		free(buf);
		return NULL;
	}
	return buf;
}

static CFStringRef sk_cfstr(const char *s) {
	return CFStringCreateWithCString(NULL, s, kCFStringEncodingUTF8);
}

static const void *sk_lookup(CFDictionaryRef info, const char *key) {
	if (info == NULL) {
		return NULL;
	}
	CFStringRef k = sk_cfstr(key);
	if (k == NULL) {
		return NULL;
	}
	const void *v = CFDictionaryGetValue(info, k);
	CFRelease(k);
	return v;
}

static char *sk_dict_string(CFDictionaryRef info, const char *key) {
	const void *v = sk_lookup(info, key);
	if (v == NULL || CFGetTypeID(v) != CFStringGetTypeID()) {
		return NULL;
	}
	return sk_utf8((CFStringRef)v);
}

static int sk_dict_int(CFDictionaryRef info, const char *key, long long *out) {
	const void *v = sk_lookup(info, key);
	if (v == NULL || CFGetTypeID(v) != CFNumberGetTypeID()) {
		return 0;
	}
	return CFNumberGetValue((CFNumberRef)v, kCFNumberLongLongType, out) ? 1 : 0;
}

static void sk_callback(CFNotificationCenterRef center, void *observer, CFNotificationName name,
		const void *object, CFDictionaryRef info) {
	char *cname = sk_utf8(name);
	skylinkNotify((uintptr_t)observer, cname, info);
	free(cname);
}

static int sk_add_observer(uintptr_t observer, const char *name) {
	CFStringRef n = sk_cfstr(name);
	if (n == NULL) {
		return -1;
	}
	CFNotificationCenterAddObserver(CFNotificationCenterGetDistributedCenter(), (const void *)observer,
		sk_callback, n, NULL, CFNotificationSuspensionBehaviorDeliverImmediately);
	CFRelease(n);
	return 0;
}

static void sk_remove_observer(uintptr_t observer) {
	CFNotificationCenterRemoveEveryObserver(CFNotificationCenterGetDistributedCenter(), (const void *)observer);
}

static int sk_post(const char *name, const char *object, const char *command, long long clientID, int withInfo) {
	CFStringRef n = sk_cfstr(name);
	CFStringRef o = sk_cfstr(object);
	if (n == NULL || o == NULL) {
		if (n) CFRelease(n);
		if (o) CFRelease(o);
		return -1;
	}
	CFDictionaryRef info = NULL;
	if (withInfo) {
		CFStringRef cmd = sk_cfstr(command);
		if (cmd == NULL) {
			CFRelease(n);
			CFRelease(o);
			return -1;
		}
		CFNumberRef id = CFNumberCreate(NULL, kCFNumberLongLongType, &clientID);
		const void *keys[2] = { CFSTR("SKYPE_API_COMMAND"), CFSTR("SKYPE_API_CLIENT_ID") };
		const void *values[2] = { cmd, id };
		info = CFDictionaryCreate(NULL, keys, values, 2,
			&kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
		CFRelease(cmd);
		CFRelease(id);
	}
	CFNotificationCenterPostNotification(CFNotificationCenterGetDistributedCenter(), n, o, info, true);
	if (info) CFRelease(info);
	CFRelease(n);
	CFRelease(o);
	return 0;
}

static int sk_run(double seconds) {
	return (int)CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, true);
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

const (
	runLoopFinished      = 1
	runLoopHandledSource = 4
)

func dictString(info C.CFDictionaryRef, key string) (string, bool) {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	v := C.sk_dict_string(info, ckey)
	if v == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(v))
	return C.GoString(v), true
}

func dictInt(info C.CFDictionaryRef, key string) (int64, bool) {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	var out C.longlong
	if C.sk_dict_int(info, ckey, &out) == 0 {
		return 0, false
	}
	return int64(out), true
}

func readNotification(name string, info C.CFDictionaryRef) notification {
	n := notification{Name: name}
	switch name {
	case notifyNotification:
		n.Text, _ = dictString(info, keyNotification)
		n.ClientID, n.HasClientID = dictInt(info, keyClientID)
	case notifyAttachResponse:
		n.ClientName, _ = dictString(info, keyClientName)
		n.AttachResponse, _ = dictInt(info, keyAttachResponse)
	case notifyAvailabilityUpdate:
		n.Availability, _ = dictInt(info, keyAvailability)
	}
	return n
}

func addObserver(observer uintptr) error {
	for _, name := range observedNames {
		cname := C.CString(name)
		rc := C.sk_add_observer(C.uintptr_t(observer), cname)
		C.free(unsafe.Pointer(cname))
		if rc != 0 {
			return fmt.Errorf("observe %s", name)
		}
	}
	return nil
}

func removeObserver(observer uintptr) {
	C.sk_remove_observer(C.uintptr_t(observer))
}

// post sends a distributed notification with the friendly name as its
// object. A non-nil command adds the command user info.
func post(name, object string, command *string, clientID int64) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	cobject := C.CString(object)
	defer C.free(unsafe.Pointer(cobject))

	var ccommand *C.char
	withInfo := C.int(0)
	if command != nil {
		ccommand = C.CString(*command)
		defer C.free(unsafe.Pointer(ccommand))
		withInfo = 1
	}
	if C.sk_post(cname, cobject, ccommand, C.longlong(clientID), withInfo) != 0 {
		return fmt.Errorf("post %s: invalid UTF-8", name)
	}
	return nil
}

// runLoop runs the current thread's run loop once for at most d and reports
// whether a notification was handled.
func runLoop(d time.Duration) bool {
	res := C.sk_run(C.double(d.Seconds()))
	if res == runLoopFinished {
		// No sources registered yet; avoid spinning.
		time.Sleep(d)
	}
	return res == runLoopHandledSource
}
