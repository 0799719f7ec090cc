//go:build darwin

// Package platform holds the few host integrations fyne does not cover.
package platform

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework AppKit
#import <Cocoa/Cocoa.h>
#import <AppKit/AppKit.h>

void setDockIconVisible(int visible) {
    if (visible) {
        [NSApp setActivationPolicy:NSApplicationActivationPolicyRegular];
    } else {
        [NSApp setActivationPolicy:NSApplicationActivationPolicyAccessory];
    }
}

void bringToFront() {
    [NSApp activateIgnoringOtherApps:YES];
}
*/
import "C"

// SetDockIconVisible shows the dock icon while the status widget is open
// and hides it when the app lives only in the menu bar.
func SetDockIconVisible(visible bool) {
	v := C.int(0)
	if visible {
		v = 1
	}
	C.setDockIconVisible(v)
}

// BringToFront activates the app so a newly shown window gets focus.
func BringToFront() {
	C.bringToFront()
}
