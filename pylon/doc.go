// Package pylon is a Go binding for a GenICam camera SDK in the style of
// Basler pylon.
//
// Every call into the SDK is guarded: an exception raised inside the SDK
// comes back as an *Error whose Kind names the exception class. Objects
// created through the package are owned by the caller and must be released
// with their Release method. Node maps, wait objects and buffer views are
// borrowed from a camera or a grab result and fail with ErrReleased or
// ErrInvalidated instead of touching freed SDK memory once their owner is
// gone.
//
// A minimal acquisition:
//
//	cam, err := pylon.CreateFirstDevice()
//	if err != nil {
//		return err
//	}
//	defer cam.Release()
//	if err := cam.Open(); err != nil {
//		return err
//	}
//	res, err := pylon.NewGrabResult()
//	if err != nil {
//		return err
//	}
//	defer res.Release()
//	if err := cam.StartGrabbing(pylon.GrabOptions{}.WithCount(10)); err != nil {
//		return err
//	}
//	for {
//		grabbing, err := cam.IsGrabbing()
//		if err != nil || !grabbing {
//			return err
//		}
//		if _, err := cam.RetrieveResult(5*time.Second, res, pylon.ThrowException); err != nil {
//			return err
//		}
//		...
//	}
//
// The SDK is loaded on first use. Initialize selects a backend explicitly;
// the default is the built-in emulation, and builds with the pylon tag also
// provide the vendor SDK as "pylon".
package pylon
