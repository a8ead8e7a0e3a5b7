package pushsdk

import "sync"

// Slot holds the SDK of one installation. The first SDK installed wins.
type Slot struct {
	mu  sync.Mutex
	sdk SDK
}

// Install stores sdk unless the slot is already taken. It returns the SDK
// that ends up in the slot and whether sdk was the one installed.
func (s *Slot) Install(sdk SDK) (SDK, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sdk != nil {
		return s.sdk, false
	}
	s.sdk = sdk
	return sdk, true
}

func (s *Slot) Get() SDK {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdk
}
