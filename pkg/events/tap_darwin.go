//go:build darwin

package events

/*
#cgo darwin CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

static Boolean axCheckTrusted(void) {
        const void *keys[] = { kAXTrustedCheckOptionPrompt };
        const void *values[] = { kCFBooleanTrue };
        CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                     &kCFTypeDictionaryKeyCallBacks,
                                                     &kCFTypeDictionaryValueCallBacks);
        Boolean trusted = AXIsProcessTrustedWithOptions(options);
        CFRelease(options);
        return trusted;
}

extern CGEventRef goHandlePointerEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef startEventTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
        CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
                                             kCGHeadInsertEventTap,
                                             kCGEventTapOptionListenOnly,
                                             mask,
                                             goHandlePointerEvent,
                                             (void *)handle);
        if (tap == NULL) {
                return NULL;
        }
        CGEventTapEnable(tap, true);
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
        *tapOut = tap;
        return source;
}

static CFRunLoopRef currentRunLoop(void) {
        return CFRunLoopGetCurrent();
}

static CGEventMask cgEventMaskBit(CGEventType type) {
        return ((CGEventMask)1) << type;
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
        CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
        CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
        CFRunLoopStop(loop);
}

static double cgEventGetX(CGEventRef event) {
        return CGEventGetLocation(event).x;
}

static double cgEventGetY(CGEventRef event) {
        return CGEventGetLocation(event).y;
}

static int64_t cgEventGetKeycode(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}
*/
import "C"

import (
	"context"
	"errors"
	"runtime"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"
)

// Virtual key codes for the function row (Carbon kVK_F1..kVK_F12).
var functionKeys = map[int]string{
	122: "f1", 120: "f2", 99: "f3", 118: "f4", 96: "f5", 97: "f6",
	98: "f7", 100: "f8", 101: "f9", 109: "f10", 103: "f11", 111: "f12",
}

type quartzSource struct {
	now func() time.Time
}

func defaultSource(clock func() time.Time) Source {
	return &quartzSource{now: clock}
}

type quartzStream struct {
	emit      func(Sample) error
	now       func() time.Time
	stopped   chan struct{}
	stopLoop  func()
	err       error
	closeOnce sync.Once
}

func (s *quartzStream) close() {
	s.closeOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *quartzStream) send(sample Sample) {
	if s.err != nil {
		return
	}
	if err := s.emit(sample); err != nil {
		s.err = err
		if s.stopLoop != nil {
			s.stopLoop()
		}
	}
}

func (s *quartzStream) handleKey(event C.CGEventRef) {
	keycode := int(C.cgEventGetKeycode(event))
	name, ok := functionKeys[keycode]
	if !ok {
		return
	}
	s.send(KeySample(name))
}

func (s *quartzStream) handlePointer(eventType C.CGEventType, event C.CGEventRef) {
	ts := unixSeconds(s.now())
	ev := RawEvent{
		RecordTime: ts,
		ClientTime: ts,
		Button:     ButtonNone,
		State:      StateMove,
		X:          float64(C.cgEventGetX(event)),
		Y:          float64(C.cgEventGetY(event)),
	}

	switch eventType {
	case C.kCGEventLeftMouseDown:
		ev.Button, ev.State = ButtonLeft, StatePressed
	case C.kCGEventLeftMouseUp:
		ev.Button, ev.State = ButtonLeft, StateReleased
	case C.kCGEventRightMouseDown:
		ev.Button, ev.State = ButtonRight, StatePressed
	case C.kCGEventRightMouseUp:
		ev.Button, ev.State = ButtonRight, StateReleased
	case C.kCGEventOtherMouseDown:
		ev.Button, ev.State = ButtonMiddle, StatePressed
	case C.kCGEventOtherMouseUp:
		ev.Button, ev.State = ButtonMiddle, StateReleased
	case C.kCGEventLeftMouseDragged, C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged:
		ev.State = StateDrag
	case C.kCGEventScrollWheel:
		ev.Button, ev.State = ButtonScroll, StateScroll
	}

	s.send(PointerSample(ev))
}

func (s *quartzSource) Stream(ctx context.Context, emit func(Sample) error) error {
	if C.axCheckTrusted() == C.Boolean(0) {
		return ErrAccessibilityPermission
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stream := &quartzStream{emit: emit, now: s.now, stopped: make(chan struct{})}
	handle := cgo.NewHandle(stream)
	defer handle.Delete()

	mask := C.cgEventMaskBit(C.kCGEventKeyDown) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDown) |
		C.cgEventMaskBit(C.kCGEventLeftMouseUp) |
		C.cgEventMaskBit(C.kCGEventRightMouseDown) |
		C.cgEventMaskBit(C.kCGEventRightMouseUp) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDown) |
		C.cgEventMaskBit(C.kCGEventOtherMouseUp) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDragged) |
		C.cgEventMaskBit(C.kCGEventRightMouseDragged) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDragged) |
		C.cgEventMaskBit(C.kCGEventMouseMoved) |
		C.cgEventMaskBit(C.kCGEventScrollWheel)

	var tap C.CFMachPortRef
	source := C.startEventTap(C.uintptr_t(handle), mask, &tap)
	if source == 0 {
		return errors.New("failed to create CGEvent tap")
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(tap))

	loop := C.currentRunLoop()
	stopOnce := sync.Once{}
	stream.stopLoop = func() {
		stopOnce.Do(func() {
			C.stopRunLoop(loop)
		})
	}
	C.addSourceToRunLoop(loop, source)

	cancelWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.stopLoop()
		case <-stream.stopped:
		}
		close(cancelWatcher)
	}()

	C.runCurrentRunLoop()
	stream.stopLoop()
	stream.close()
	<-cancelWatcher
	if stream.err != nil {
		return stream.err
	}
	return ctx.Err()
}

//export goHandlePointerEvent
func goHandlePointerEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	handle := cgo.Handle(uintptr(userInfo))
	stream, ok := handle.Value().(*quartzStream)
	if !ok {
		return event
	}

	switch eventType {
	case C.kCGEventKeyDown:
		stream.handleKey(event)
	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp,
		C.kCGEventLeftMouseDragged, C.kCGEventRightMouseDragged, C.kCGEventOtherMouseDragged,
		C.kCGEventMouseMoved, C.kCGEventScrollWheel:
		stream.handlePointer(eventType, event)
	}

	return event
}
