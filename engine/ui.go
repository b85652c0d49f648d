// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/gviegas/deferred/driver"
)

// UI is a user interface drawn over the scene.
// The engine does not depend on any widget toolkit:
// implementations read and update parameters through
// Renderer.Controls and record their own commands.
type UI interface {
	// Record records the commands that draw the
	// interface into target, restricted to extent.
	// target is in layout LCommon and must be left so.
	Record(cb driver.CmdBuffer, target *AllocatedImage, extent driver.Dim3D)
}
