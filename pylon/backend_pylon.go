//go:build pylon

package pylon

import _ "github.com/cjeanneret/PylonGo/internal/native/pylonsdk"
