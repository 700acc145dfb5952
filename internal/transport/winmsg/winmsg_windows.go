//go:build windows

package winmsg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"skylink/internal/apierr"
	"skylink/internal/attach"
	"skylink/internal/logging"
	"skylink/internal/transport"
)

var (
	user32                     = windows.NewLazySystemDLL("user32.dll")
	procRegisterWindowMessageW = user32.NewProc("RegisterWindowMessageW")
	procRegisterClassExW       = user32.NewProc("RegisterClassExW")
	procUnregisterClassW       = user32.NewProc("UnregisterClassW")
	procCreateWindowExW        = user32.NewProc("CreateWindowExW")
	procDestroyWindow          = user32.NewProc("DestroyWindow")
	procDefWindowProcW         = user32.NewProc("DefWindowProcW")
	procGetMessageW            = user32.NewProc("GetMessageW")
	procTranslateMessage       = user32.NewProc("TranslateMessage")
	procDispatchMessageW       = user32.NewProc("DispatchMessageW")
	procPostMessageW           = user32.NewProc("PostMessageW")
	procSendMessageW           = user32.NewProc("SendMessageW")
	procSendMessageTimeoutW    = user32.NewProc("SendMessageTimeoutW")
	procFindWindowW            = user32.NewProc("FindWindowW")
)

const (
	wmQuit            = 0x0012
	wmCopyData        = 0x004A
	hwndBroadcast     = 0xFFFF
	smtoAbortIfHung   = 0x0002
	discoverTimeoutMS = 5000
	wsOverlappedAll   = 0x00CF0000
	cwUseDefault      = 0x80000000
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
	Private uint32
}

type copyDataStruct struct {
	Data uintptr
	Size uint32
	Ptr  uintptr
}

// The window procedure is one callback shared by every window; it finds the
// owning window through this registry.
var (
	wndProcOnce sync.Once
	wndProcPtr  uintptr

	registryMu sync.Mutex
	registry   = map[uintptr]*window{}
)

func sharedWndProc() uintptr {
	wndProcOnce.Do(func() { wndProcPtr = windows.NewCallback(wndProc) })
	return wndProcPtr
}

func wndProc(hwnd, umsg, wparam, lparam uintptr) uintptr {
	registryMu.Lock()
	w := registry[hwnd]
	registryMu.Unlock()
	if w != nil {
		if ret, handled := w.handle(uint32(umsg), wparam, lparam); handled {
			return ret
		}
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, umsg, wparam, lparam)
	return r
}

// Transport is the window-message host channel.
type Transport struct {
	logger *slog.Logger

	mu   sync.Mutex
	win  *window
	done chan struct{}
}

// New returns an unopened transport.
func New(opts Options) *Transport {
	return &Transport{logger: logging.NewComponentLogger(opts.Logger, "winmsg")}
}

func (t *Transport) Kind() transport.Kind { return transport.KindWinMsg }

// Handshake reports a native attach during which the host may ask its user
// for consent for as long as it likes.
func (t *Transport) Handshake() transport.Handshake {
	return transport.Handshake{Mode: transport.HandshakeNative, PendingSuspendsTimeout: true}
}

// Open starts the window goroutine and waits until its window exists.
func (t *Transport) Open(_ context.Context, sink transport.Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.win != nil {
		return nil
	}

	w := &window{sink: sink, logger: t.logger}
	ready := make(chan error, 1)
	done := make(chan struct{})
	go w.run(ready, done)
	if err := <-ready; err != nil {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "winmsg", "create window", "", err)
	}
	t.win, t.done = w, done
	t.logger.Debug("winmsg transport opened")
	return nil
}

// Close quits the window goroutine, which destroys the window.
func (t *Transport) Close() error {
	t.mu.Lock()
	w, done := t.win, t.done
	t.win, t.done = nil, nil
	t.mu.Unlock()
	if w == nil {
		return nil
	}
	if r, _, err := procPostMessageW.Call(w.hwnd, wmQuit, 0, 0); r == 0 {
		return fmt.Errorf("post quit message: %w", err)
	}
	<-done
	t.logger.Debug("winmsg transport closed")
	return nil
}

// Discover looks for the host's main window.
func (t *Transport) Discover(context.Context) (bool, error) {
	for _, class := range hostWindowClasses {
		name, err := windows.UTF16PtrFromString(class)
		if err != nil {
			return false, err
		}
		if r, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(name)), 0); r != 0 {
			return true, nil
		}
	}
	return false, nil
}

// RequestAttach broadcasts the discover message carrying this client's window.
// The host answers with the attach message.
func (t *Transport) RequestAttach(context.Context, string) error {
	w := t.window()
	if w == nil {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "winmsg", "attach", "transport not open", nil)
	}
	var result uintptr
	r, _, err := procSendMessageTimeoutW.Call(hwndBroadcast, uintptr(w.msgDiscover), w.hwnd, 0,
		smtoAbortIfHung, discoverTimeoutMS, uintptr(unsafe.Pointer(&result)))
	if r == 0 {
		return apierr.Wrap(apierr.ErrTransportUnavailable, "winmsg", "broadcast discover", "", err)
	}
	t.logger.Debug("broadcast discover message")
	return nil
}

// Post sends frame to the attached host window as WM_COPYDATA.
func (t *Transport) Post(_ context.Context, frame string) error {
	w := t.window()
	if w == nil {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "winmsg", "post", "transport not open", nil)
	}
	peer := w.peer()
	if peer == 0 {
		return apierr.Wrap(apierr.ErrTransportSendFailure, "winmsg", "post", "no host window", nil)
	}

	data := encodeCopyData(frame)
	cds := copyDataStruct{Size: uint32(len(data)), Ptr: uintptr(unsafe.Pointer(&data[0]))}
	r, _, err := procSendMessageW.Call(peer, wmCopyData, w.hwnd, uintptr(unsafe.Pointer(&cds)))
	runtime.KeepAlive(data)
	if r == 0 {
		w.forgetPeer()
		return apierr.Wrap(apierr.ErrTransportSendFailure, "winmsg", "post", "host rejected WM_COPYDATA", err)
	}
	return nil
}

func (t *Transport) window() *window {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.win
}

// window is the hidden client window. hwnd, className and the message ids
// are fixed once run reports ready.
type window struct {
	hwnd        uintptr
	className   *uint16
	msgDiscover uint32
	msgAttach   uint32
	sink        transport.Sink
	logger      *slog.Logger

	mu    sync.Mutex
	peers peerTracker
}

func (w *window) run(ready chan<- error, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	if err := w.create(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	var m winMsg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
	w.destroy()
}

func (w *window) create() error {
	var err error
	if w.msgDiscover, err = registerMessage(discoverMessage); err != nil {
		return err
	}
	if w.msgAttach, err = registerMessage(attachMessage); err != nil {
		return err
	}

	var instance windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &instance); err != nil {
		return fmt.Errorf("module handle: %w", err)
	}
	if w.className, err = windows.UTF16PtrFromString("skylink." + uuid.NewString()); err != nil {
		return err
	}
	class := wndClassEx{
		Style:     3, // CS_HREDRAW | CS_VREDRAW
		WndProc:   sharedWndProc(),
		Instance:  instance,
		ClassName: w.className,
	}
	class.Size = uint32(unsafe.Sizeof(class))
	if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&class))); r == 0 {
		return fmt.Errorf("register window class: %w", err)
	}

	title, _ := windows.UTF16PtrFromString("skylink")
	hwnd, _, err := procCreateWindowExW.Call(0,
		uintptr(unsafe.Pointer(w.className)), uintptr(unsafe.Pointer(title)),
		wsOverlappedAll, cwUseDefault, cwUseDefault, cwUseDefault, cwUseDefault,
		0, 0, uintptr(instance), 0)
	if hwnd == 0 {
		procUnregisterClassW.Call(uintptr(unsafe.Pointer(w.className)), 0)
		return fmt.Errorf("create window: %w", err)
	}
	w.hwnd = hwnd

	registryMu.Lock()
	registry[hwnd] = w
	registryMu.Unlock()
	return nil
}

func (w *window) destroy() {
	registryMu.Lock()
	delete(registry, w.hwnd)
	registryMu.Unlock()

	if r, _, err := procDestroyWindow.Call(w.hwnd); r == 0 {
		w.logger.Debug("destroy window failed", logging.Error(err))
	}
	if r, _, err := procUnregisterClassW.Call(uintptr(unsafe.Pointer(w.className)), 0); r == 0 {
		w.logger.Debug("unregister window class failed", logging.Error(err))
	}
}

// handle runs on the window goroutine for every message dispatched to w.
func (w *window) handle(umsg uint32, wparam, lparam uintptr) (uintptr, bool) {
	switch {
	case umsg == w.msgAttach:
		status, ok := attach.FromWire(int(int32(lparam)))
		if !ok {
			w.logger.Debug("ignoring unknown attach status", logging.Int64("status", int64(int32(lparam))))
			return 1, true
		}
		return w.attachResponse(wparam, status), true

	case umsg == wmCopyData:
		w.mu.Lock()
		accepted := w.peers.accepts(wparam)
		w.mu.Unlock()
		if !accepted || lparam == 0 {
			return 0, false
		}
		cds := (*copyDataStruct)(unsafe.Pointer(lparam))
		if cds.Size == 0 || cds.Ptr == 0 {
			return 1, true
		}
		data := unsafe.Slice((*byte)(unsafe.Pointer(cds.Ptr)), cds.Size)
		w.sink.Receive(decodeCopyData(data))
		return 1, true

	case umsg == uint32(attach.Available):
		// Some host builds announce a restart with the status as the message id.
		return w.attachResponse(0, attach.Available), true
	}
	return 0, false
}

func (w *window) attachResponse(peer uintptr, status attach.Status) uintptr {
	w.mu.Lock()
	verdict := w.peers.observe(peer, status)
	w.mu.Unlock()

	switch verdict {
	case verdictSecondPeer:
		logging.WarnWithContext(w.logger, "ignoring attach success from a second host window", "winmsg_second_peer",
			logging.String(logging.FieldImpact, "the first host window stays attached"),
			logging.String(logging.FieldErrorHint, "close duplicate host instances"),
		)
		return 1
	case verdictLatePending:
		logging.WarnWithContext(w.logger, "ignoring pending authorization after attach", "winmsg_late_pending",
			logging.String(logging.FieldImpact, "none"),
		)
		return 0
	}
	w.sink.SetStatus(status)
	return 1
}

func (w *window) peer() uintptr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peers.peer
}

func (w *window) forgetPeer() {
	w.mu.Lock()
	w.peers.peer = 0
	w.mu.Unlock()
}

func registerMessage(name string) (uint32, error) {
	ptr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, _, callErr := procRegisterWindowMessageW.Call(uintptr(unsafe.Pointer(ptr)))
	if r == 0 {
		return 0, errors.Join(fmt.Errorf("register window message %s", name), callErr)
	}
	return uint32(r), nil
}
